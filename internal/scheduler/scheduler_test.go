package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/agentclient"
	"github.com/intar-dev/intar-cli/internal/probespec"
	"github.com/intar-dev/intar-cli/internal/scenario"
)

type fakeSender struct {
	calls   atomic.Int32
	results []agentclient.ProbeResult
	err     error
}

func (f *fakeSender) CheckAll(ctx context.Context, probes []agentclient.ProbeRequest) ([]agentclient.ProbeResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func probeDef(id string, phase scenario.Phase) scenario.ProbeDefinition {
	return scenario.ProbeDefinition{
		ID:    id,
		Phase: phase,
		Spec:  probespec.ProbeSpec{Kind: probespec.KindFileExists, FileExists: &probespec.FileExistsSpec{Path: "/tmp/x", Exists: true}},
	}
}

func TestScheduler_RunBootPhase(t *testing.T) {
	fake := &fakeSender{results: []agentclient.ProbeResult{{ID: "p1", Passed: true, Message: "ok"}}}
	s := New("vm1", fake, []scenario.ProbeDefinition{probeDef("p1", scenario.PhaseBoot)}, zap.NewNop())

	sub := s.Subscribe()
	require.NoError(t, s.RunBootPhase(context.Background()))

	select {
	case r := <-sub:
		assert.Equal(t, "p1", r.ProbeID)
		assert.True(t, r.Passed)
	case <-time.After(time.Second):
		t.Fatal("expected a published result")
	}
}

func TestScheduler_DedupesConsecutiveIdenticalResults(t *testing.T) {
	fake := &fakeSender{results: []agentclient.ProbeResult{{ID: "p1", Passed: false, Message: "nope"}}}
	s := New("vm1", fake, []scenario.ProbeDefinition{probeDef("p1", scenario.PhaseBoot)}, zap.NewNop())

	sub := s.Subscribe()
	require.NoError(t, s.checkAll(context.Background(), scenario.PhaseBoot))
	require.NoError(t, s.checkAll(context.Background(), scenario.PhaseBoot))

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Contains(t, s.results, "p1")
	assert.Equal(t, false, s.results["p1"].Passed)
	assert.Len(t, sub, 1, "identical second result must not be republished")
}

func TestScheduler_RetriesTransportErrors(t *testing.T) {
	fake := &fakeSender{err: assert.AnError}
	s := New("vm1", fake, []scenario.ProbeDefinition{probeDef("p1", scenario.PhaseBoot)}, zap.NewNop())

	retryBackoffsOriginal := retryBackoffs
	retryBackoffs = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { retryBackoffs = retryBackoffsOriginal }()

	err := s.checkAll(context.Background(), scenario.PhaseBoot)
	require.Error(t, err)
	assert.Equal(t, int32(4), fake.calls.Load()) // 1 initial + 3 retries
}

func TestScheduler_NoOutstandingProbesForPhase(t *testing.T) {
	fake := &fakeSender{}
	s := New("vm1", fake, []scenario.ProbeDefinition{probeDef("p1", scenario.PhasePost)}, zap.NewNop())

	require.NoError(t, s.RunBootPhase(context.Background()))
	assert.Equal(t, int32(0), fake.calls.Load())
}
