// Package evidence builds and verifies the tar.gz evidence bundle exported
// for a demo session.
package evidence

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/intelligence"
)

// Version is the bundle format version.
const Version = "1.0"

// ManifestName is the manifest entry inside a bundle.
const ManifestName = "manifest.json"

// ErrInvalidPack is returned when a bundle fails verification.
var ErrInvalidPack = errors.New("evidence: invalid pack")

// Manifest is written as manifest.json inside the bundle.
type Manifest struct {
	Version       string            `json:"version"`
	ExportedAt    string            `json:"exported_at"`
	SessionID     string            `json:"session_id"`
	Seed          int               `json:"seed"`
	ConnectorMode string            `json:"connector_mode"`
	Receipts      int               `json:"receipts"`
	LedgerHead    string            `json:"ledger_head,omitempty"`
	FileHashes    map[string]string `json:"file_hashes"`
}

// Files returns the bundle entries for a snapshot, keyed by name.
func Files(snap demo.Snapshot) (map[string][]byte, []intelligence.DecisionEvent, error) {
	ledger := intelligence.DecisionLedger(snap.Workflows, snap.Settings.Seed)
	parts := map[string]any{
		"receipts.json":  snap.Receipts,
		"ledger.json":    ledger,
		"activity.json":  snap.Activity,
		"workflows.json": snap.Workflows,
	}
	files := make(map[string][]byte, len(parts))
	for name, v := range parts {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		files[name] = data
	}
	return files, ledger, nil
}

// Build creates a deterministic tar.gz bundle for one session snapshot.
// Entries are sorted and carry a fixed mtime, so equal inputs give equal
// bytes.
func Build(sessionID string, snap demo.Snapshot, exportedAt time.Time) ([]byte, *Manifest, error) {
	files, ledger, err := Files(snap)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	hashes := make(map[string]string, len(files))
	for _, name := range names {
		h := sha256.Sum256(files[name])
		hashes[name] = hex.EncodeToString(h[:])
	}

	m := &Manifest{
		Version:       Version,
		ExportedAt:    exportedAt.UTC().Format(time.RFC3339),
		SessionID:     sessionID,
		Seed:          snap.Settings.Seed,
		ConnectorMode: string(snap.Settings.ConnectorMode),
		Receipts:      len(snap.Receipts),
		FileHashes:    hashes,
	}
	if n := len(ledger); n > 0 {
		m.LedgerHead = ledger[n-1].RowHash
	}
	manifestBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal manifest: %w", err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	// Manifest first.
	if err := writeEntry(tw, ManifestName, manifestBytes); err != nil {
		return nil, nil, err
	}
	for _, name := range names {
		if err := writeEntry(tw, name, files[name]); err != nil {
			return nil, nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), m, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0o644,
		ModTime: time.Unix(0, 0),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write data %s: %w", name, err)
	}
	return nil
}

// Verify reads a bundle, checks every file against the manifest and the
// ledger chain, and returns the manifest.
func Verify(r io.Reader) (*Manifest, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrInvalidPack, err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	var manifest *Manifest
	contents := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: tar: %v", ErrInvalidPack, err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidPack, hdr.Name, err)
		}
		if hdr.Name == ManifestName {
			var m Manifest
			if err := json.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("%w: decode manifest: %v", ErrInvalidPack, err)
			}
			manifest = &m
			continue
		}
		contents[hdr.Name] = data
	}
	if manifest == nil {
		return nil, fmt.Errorf("%w: %s not found", ErrInvalidPack, ManifestName)
	}

	for name, want := range manifest.FileHashes {
		data, ok := contents[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s listed in manifest but missing", ErrInvalidPack, name)
		}
		h := sha256.Sum256(data)
		if got := hex.EncodeToString(h[:]); got != want {
			return nil, fmt.Errorf("%w: hash mismatch for %s", ErrInvalidPack, name)
		}
	}
	for name := range contents {
		if _, ok := manifest.FileHashes[name]; !ok {
			return nil, fmt.Errorf("%w: %s not listed in manifest", ErrInvalidPack, name)
		}
	}

	if raw, ok := contents["ledger.json"]; ok {
		var ledger []intelligence.DecisionEvent
		if err := json.Unmarshal(raw, &ledger); err != nil {
			return nil, fmt.Errorf("%w: decode ledger: %v", ErrInvalidPack, err)
		}
		if err := intelligence.VerifyChain(ledger); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
		}
	}
	return manifest, nil
}
