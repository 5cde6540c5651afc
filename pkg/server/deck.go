package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/artifacts"
)

type deckIndex struct {
	Pages []string `json:"pages"`
}

func (s *Server) handleDeckIndex(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, deckIndex{Pages: artifacts.DeckPages()})
}

func (s *Server) handleDeckPage(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		api.WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "deck storage is not configured")
		return
	}
	key, err := artifacts.DeckKey(r.PathValue("page"))
	if err != nil {
		api.WriteErrorR(w, r, http.StatusNotFound, "Not Found", "no such deck page")
		return
	}
	data, err := s.artifacts.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			api.WriteErrorR(w, r, http.StatusNotFound, "Not Found", "no such deck page")
			return
		}
		api.WriteInternal(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handlePutDeckPage replaces one deck page.
func (s *Server) handlePutDeckPage(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		api.WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "deck storage is not configured")
		return
	}
	key, err := artifacts.DeckKey(r.PathValue("page"))
	if err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		api.WriteErrorR(w, r, http.StatusRequestEntityTooLarge, "Payload Too Large", "deck page exceeds 1 MiB")
		return
	}
	digest, err := s.artifacts.Put(r.Context(), key, data, "text/html; charset=utf-8")
	if err != nil {
		api.WriteInternal(w, s.logger, err)
		return
	}
	s.logger.InfoContext(r.Context(), "deck page updated", "key", key, "digest", digest)
	api.WriteJSON(w, http.StatusOK, map[string]string{"key": key, "digest": digest})
}
