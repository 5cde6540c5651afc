package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/autoplay"
	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/intelligence"
	"github.com/Mindburn-Labs/sita/pkg/sessions"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// actionRequest is one store operation.
type actionRequest struct {
	Op       string              `json:"op"`
	Workflow workflow.ID         `json:"workflow"`
	Avatar   workflow.Avatar     `json:"avatar"`
	Tab      demo.IntelTab       `json:"tab"`
	Mode     demo.ViewMode       `json:"mode"`
	Text     string              `json:"text"`
	Settings *demo.SettingsPatch `json:"settings"`
}

type keyRequest struct {
	Key         string `json:"key"`
	InTextInput bool   `json:"inTextInput"`
}

type sessionResponse struct {
	ID       string        `json:"id"`
	Snapshot demo.Snapshot `json:"snapshot"`
}

// session resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			api.WriteErrorR(w, r, http.StatusNotFound, "Not Found", "session not found")
			return nil, false
		}
		api.WriteInternal(w, s.logger, err)
		return nil, false
	}
	return sess, true
}

// visitor returns the visitor id from the cookie, issuing one if absent.
func (s *Server) visitor(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(VisitorCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookie,
		Value:    id,
		Path:     "/",
		Expires:  s.clk.Now().Add(visitorCookieTTL),
		MaxAge:   int(visitorCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(s.visitor(w, r))
	if err != nil {
		if errors.Is(err, sessions.ErrTooManySessions) {
			api.WriteServiceUnavailable(w, "too many live demo sessions, try again shortly")
			return
		}
		api.WriteInternal(w, s.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, Snapshot: sess.Store.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, Snapshot: sess.Store.Snapshot()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			api.WriteErrorR(w, r, http.StatusNotFound, "Not Found", "session not found")
			return
		}
		api.WriteInternal(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIntelligence(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap := sess.Store.Snapshot()
	api.WriteJSON(w, http.StatusOK, intelligence.Build(snap.Workflows, snap.Active, snap.Settings.Seed))
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if !s.schemas.DecodeValid(w, r, schemaAction, &req) {
		return
	}
	applyAction(sess, req)
	api.WriteJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, Snapshot: sess.Store.Snapshot()})
}

// applyAction maps a request onto the store. Values the store does not
// accept are no-ops there, not errors here.
func applyAction(sess *sessions.Session, req actionRequest) {
	st := sess.Store
	switch req.Op {
	case "setActiveWorkflow":
		st.SetActiveWorkflow(req.Workflow)
	case "advance":
		st.AdvanceWorkflow(req.Workflow)
	case "approveWire":
		st.ApproveWire()
	case "setAvatar":
		st.SetAvatarState(req.Avatar)
	case "updateSettings":
		if req.Settings != nil {
			st.UpdateSettings(*req.Settings)
		}
	case "setNarration":
		st.SetNarration(req.Text)
	case "setIntelTab":
		st.SetIntelTab(req.Tab)
	case "dismissAttack":
		st.DismissAttack()
	case "dismissCompletion":
		st.DismissCompletion()
	case "chooseMode":
		st.ChooseMode(req.Mode)
	case "reset":
		st.ResetDemo()
	case "startAutoplay":
		st.StartAutoplay()
		sess.Reporter.Start()
	case "stopAutoplay":
		st.StopAutoplay()
		sess.Reporter.Stop()
	}
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req keyRequest
	if !s.schemas.DecodeValid(w, r, schemaKey, &req) {
		return
	}
	sess.Store.HandleKey(req.Key, req.InTextInput)
	api.WriteJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, Snapshot: sess.Store.Snapshot()})
}

func (s *Server) handleStartAutoplay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Store.StartAutoplay()
	sess.Reporter.Start()
	api.WriteJSON(w, http.StatusAccepted, progressOf(sess))
}

func (s *Server) handleStopAutoplay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Store.StopAutoplay()
	sess.Reporter.Stop()
	api.WriteJSON(w, http.StatusOK, progressOf(sess))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, progressOf(sess))
}

// progressOf prefers the reporter's sample and computes one directly when
// the reporter is stopped.
func progressOf(sess *sessions.Session) autoplay.Progress {
	if sess.Reporter.Running() {
		return sess.Reporter.Latest()
	}
	return autoplay.Compute(sess.Player.Script(), autoplay.Acts(), sess.Player.Position())
}
