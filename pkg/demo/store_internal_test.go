package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityRingBuffer(t *testing.T) {
	s := NewStore(Options{})
	defer s.Close()

	s.mu.Lock()
	for i := 0; i < ActivityCap+7; i++ {
		s.appendLocked(ActivitySystem, "tick", FrozenInstant)
	}
	s.mu.Unlock()

	snap := s.Snapshot()
	require.Len(t, snap.Activity, ActivityCap)
	assert.Equal(t, uint64(8), snap.Activity[0].Seq)
	assert.Equal(t, uint64(ActivityCap+7), snap.Activity[ActivityCap-1].Seq)
}
