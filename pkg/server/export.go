package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/artifacts"
	"github.com/Mindburn-Labs/sita/pkg/evidence"
	"github.com/Mindburn-Labs/sita/pkg/records"
	"github.com/Mindburn-Labs/sita/pkg/sessions"
)

// EvidenceDigestHeader carries the bundle digest on export responses.
const EvidenceDigestHeader = "X-Evidence-Digest"

// handleExport serves the session's evidence bundle. The bundle is also
// archived to the artifact store and recorded; archiving failures are
// logged and do not fail the download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap := sess.Store.Snapshot()
	data, manifest, err := evidence.Build(sess.ID, snap, s.clk.Now())
	if err != nil {
		api.WriteInternal(w, s.logger, err)
		return
	}
	digest := artifacts.Digest(data)

	if err := s.archiveExport(r.Context(), sess.ID, digest, manifest.Receipts, data); err != nil {
		s.logger.WarnContext(r.Context(), "evidence archive failed", "session", sess.ID, "error", err)
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="sita-evidence-%s.tar.gz"`, sess.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(EvidenceDigestHeader, digest)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ExportKey is the artifact key an evidence bundle is archived under.
func ExportKey(sessionID, digest string) string {
	hex := strings.TrimPrefix(digest, "sha256:")
	if len(hex) > 16 {
		hex = hex[:16]
	}
	return "exports/" + sessionID + "/" + hex + ".tar.gz"
}

func (s *Server) archiveExport(ctx context.Context, sessionID, digest string, receipts int, data []byte) (err error) {
	if s.artifacts == nil {
		return nil
	}
	if s.telemetry != nil {
		var done func(error)
		ctx, done = s.telemetry.TrackOperation(ctx, "evidence.archive", attribute.String("session", sessionID))
		defer func() { done(err) }()
	}
	key := ExportKey(sessionID, digest)
	if _, err := s.artifacts.Put(ctx, key, data, "application/gzip"); err != nil {
		return err
	}
	if s.records == nil {
		return nil
	}
	suffix, err := nanoid.Generate(sessions.Alphabet, 12)
	if err != nil {
		return err
	}
	return s.records.Insert(ctx, records.TableEvidenceExports, records.Record{
		"id":           "exp_" + suffix,
		"session_id":   sessionID,
		"artifact_key": key,
		"receipts":     receipts,
		"sha256":       digest,
		"created_at":   s.clk.Now().UTC(),
	})
}
