package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sita/pkg/evidence"
	"github.com/Mindburn-Labs/sita/pkg/intelligence"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

func withJSON(t *testing.T, on bool) {
	t.Helper()
	prev := jsonOutput
	jsonOutput = on
	t.Cleanup(func() { jsonOutput = prev })
}

func TestCompleteDemo(t *testing.T) {
	snap := completeDemo(42)

	assert.True(t, snap.Completed)
	assert.Len(t, snap.Receipts, 3)
	for _, id := range workflow.All() {
		st, ok := snap.Workflow(id)
		require.True(t, ok)
		assert.Equal(t, workflow.ReceiptStep, st.Step, id)
	}
}

func TestLedgerCommandJSON(t *testing.T) {
	withJSON(t, true)
	var buf bytes.Buffer
	ledgerCmd.SetOut(&buf)
	t.Cleanup(func() { ledgerCmd.SetOut(nil) })
	ledgerSeed = 42

	require.NoError(t, ledgerCmd.RunE(ledgerCmd, nil))

	var events []intelligence.DecisionEvent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &events))
	require.Len(t, events, 3)
	assert.NoError(t, intelligence.VerifyChain(events))
	assert.Equal(t, workflow.RevenueLeak, events[0].Workflow)
}

func TestLedgerCommandIsDeterministic(t *testing.T) {
	withJSON(t, true)
	run := func() string {
		var buf bytes.Buffer
		ledgerCmd.SetOut(&buf)
		require.NoError(t, ledgerCmd.RunE(ledgerCmd, nil))
		return buf.String()
	}
	t.Cleanup(func() { ledgerCmd.SetOut(nil) })
	ledgerSeed = 7

	assert.Equal(t, run(), run())
}

func TestVerifyCommand(t *testing.T) {
	withJSON(t, false)
	data, _, err := evidence.Build("ses_cli", completeDemo(42), time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var buf bytes.Buffer
	verifyCmd.SetOut(&buf)
	t.Cleanup(func() { verifyCmd.SetOut(nil) })
	verifyBundle = path

	require.NoError(t, verifyCmd.RunE(verifyCmd, nil))
	assert.Contains(t, buf.String(), "ses_cli")
}

func TestRunAutoplayFinishes(t *testing.T) {
	withJSON(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var buf bytes.Buffer
	require.NoError(t, runAutoplay(ctx, &buf, 42, 0.001, true))

	out := buf.String()
	assert.Contains(t, out, "step 1")
	assert.Contains(t, out, "step 24")
	assert.Contains(t, out, "done:")
}

func TestRunAutoplayRejectsBadScale(t *testing.T) {
	assert.Error(t, runAutoplay(context.Background(), &bytes.Buffer{}, 42, 0, false))
}
