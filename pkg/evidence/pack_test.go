package evidence_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/evidence"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

var exportedAt = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func completedSnapshot(t *testing.T) demo.Snapshot {
	t.Helper()
	s := demo.NewStore(demo.Options{Clock: clock.NewMock()})
	t.Cleanup(s.Close)
	for i := 0; i < 6; i++ {
		for _, id := range workflow.All() {
			s.AdvanceWorkflow(id)
		}
		s.ApproveWire()
	}
	return s.Snapshot()
}

func TestBuild_VerifyRoundTrip(t *testing.T) {
	snap := completedSnapshot(t)
	data, m, err := evidence.Build("ses_test", snap, exportedAt)
	require.NoError(t, err)

	assert.Equal(t, evidence.Version, m.Version)
	assert.Equal(t, "ses_test", m.SessionID)
	assert.Equal(t, 42, m.Seed)
	assert.Equal(t, "SIM", m.ConnectorMode)
	assert.Equal(t, len(snap.Receipts), m.Receipts)
	assert.NotEmpty(t, m.LedgerHead)
	assert.Len(t, m.FileHashes, 4)

	got, err := evidence.Verify(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, m.FileHashes, got.FileHashes)
	assert.Equal(t, "2026-01-15T10:00:00Z", got.ExportedAt)
}

func TestBuild_Deterministic(t *testing.T) {
	snap := completedSnapshot(t)
	a, _, err := evidence.Build("ses_test", snap, exportedAt)
	require.NoError(t, err)
	b, _, err := evidence.Build("ses_test", snap, exportedAt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuild_EmptySession(t *testing.T) {
	s := demo.NewStore(demo.Options{Clock: clock.NewMock()})
	defer s.Close()

	data, m, err := evidence.Build("ses_empty", s.Snapshot(), exportedAt)
	require.NoError(t, err)
	assert.Zero(t, m.Receipts)
	assert.Empty(t, m.LedgerHead)

	_, err = evidence.Verify(bytes.NewReader(data))
	assert.NoError(t, err)
}

// rewrite copies a bundle, passing every entry through edit.
func rewrite(t *testing.T, data []byte, edit func(name string, body []byte) []byte) []byte {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gr)

	var out bytes.Buffer
	gw := gzip.NewWriter(&out)
	tw := tar.NewWriter(gw)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		body = edit(hdr.Name, body)
		if body == nil {
			continue
		}
		hdr.Size = int64(len(body))
		require.NoError(t, tw.WriteHeader(hdr))
		_, err = tw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return out.Bytes()
}

func TestVerify_DetectsTampering(t *testing.T) {
	data, _, err := evidence.Build("ses_test", completedSnapshot(t), exportedAt)
	require.NoError(t, err)

	tampered := rewrite(t, data, func(name string, body []byte) []byte {
		if name == "receipts.json" {
			return bytes.Replace(body, []byte("SIM"), []byte("REAL"), 1)
		}
		return body
	})
	_, err = evidence.Verify(bytes.NewReader(tampered))
	assert.ErrorIs(t, err, evidence.ErrInvalidPack)
	assert.ErrorContains(t, err, "hash mismatch for receipts.json")

	missing := rewrite(t, data, func(name string, body []byte) []byte {
		if name == "ledger.json" {
			return nil
		}
		return body
	})
	_, err = evidence.Verify(bytes.NewReader(missing))
	assert.ErrorContains(t, err, "missing")

	noManifest := rewrite(t, data, func(name string, body []byte) []byte {
		if name == evidence.ManifestName {
			return nil
		}
		return body
	})
	_, err = evidence.Verify(bytes.NewReader(noManifest))
	assert.ErrorContains(t, err, "manifest.json not found")
}

func TestVerify_RejectsGarbage(t *testing.T) {
	_, err := evidence.Verify(bytes.NewReader([]byte("not a bundle")))
	assert.ErrorIs(t, err, evidence.ErrInvalidPack)
}
