// Package scheduler drives probe evaluation against a VM's agent client:
// a one-shot pass for boot-phase probes, and a ticking, backpressured,
// deduping loop for post-phase probes, fanning results out to subscribers.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/agentclient"
	"github.com/intar-dev/intar-cli/internal/probespec"
	"github.com/intar-dev/intar-cli/internal/scenario"
)

// ProbeResult is one observed outcome for a (vm, probe) pair, append-only
// per run except for LastObserved, which is updated in place on a
// duplicate consecutive result.
type ProbeResult struct {
	VMName       string    `json:"vm_name"`
	ProbeID      string    `json:"probe_id"`
	Passed       bool      `json:"passed"`
	Message      string    `json:"message"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
	LastObserved time.Time `json:"last_observed"`
}

const postTick = 3 * time.Second

var retryBackoffs = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// agentSender is the subset of agentclient.Client the scheduler needs;
// narrowed to an interface so tests can fake the transport without a real
// virtio-serial socket.
type agentSender interface {
	CheckAll(ctx context.Context, probes []agentclient.ProbeRequest) ([]agentclient.ProbeResult, error)
}

// Scheduler evaluates one VM's probes against its agent client and
// publishes ProbeResults to subscribers.
type Scheduler struct {
	vmName string
	client agentSender
	probes []scenario.ProbeDefinition
	log    *zap.Logger

	mu      sync.Mutex
	results map[string]*ProbeResult // probe id -> last result
	subs    []chan ProbeResult

	busy atomic.Bool

	sink *ResultsWriter // appends every published result to results.ndjson; nil until SetResultsSink is called
}

// SetResultsSink wires w as the destination every subsequent published
// result is appended to, in addition to the Subscribe fan-out.
func (s *Scheduler) SetResultsSink(w *ResultsWriter) {
	s.sink = w
}

// New builds a Scheduler for one VM's declared probes.
func New(vmName string, client agentSender, probes []scenario.ProbeDefinition, log *zap.Logger) *Scheduler {
	return &Scheduler{
		vmName:  vmName,
		client:  client,
		probes:  probes,
		log:     log.With(zap.String("vm", vmName)),
		results: make(map[string]*ProbeResult),
	}
}

// Subscribe registers a new ProbeResult listener. The returned channel is
// buffered so a slow subscriber can't stall publication to others.
func (s *Scheduler) Subscribe() <-chan ProbeResult {
	ch := make(chan ProbeResult, 64)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// RunBootPhase evaluates every boot-phase probe exactly once.
func (s *Scheduler) RunBootPhase(ctx context.Context) error {
	return s.checkAll(ctx, scenario.PhaseBoot)
}

// RunPostPhase ticks every postTick, issuing at most one outstanding
// check_all at a time, until ctx is cancelled.
func (s *Scheduler) RunPostPhase(ctx context.Context) {
	ticker := time.NewTicker(postTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				s.log.Debug("skipping tick, previous check_all still outstanding")
				continue
			}
			go func() {
				defer s.busy.Store(false)
				if err := s.checkAll(ctx, scenario.PhasePost); err != nil {
					s.log.Debug("post-phase check_all failed", zap.Error(err))
				}
			}()
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context, phase scenario.Phase) error {
	var reqs []agentclient.ProbeRequest
	var defs []scenario.ProbeDefinition
	for _, p := range s.probes {
		if p.EffectivePhase() != phase {
			continue
		}
		raw, err := json.Marshal(specBody(p.Spec))
		if err != nil {
			return err
		}
		reqs = append(reqs, agentclient.ProbeRequest{ID: p.ID, Spec: raw})
		defs = append(defs, p)
	}
	if len(reqs) == 0 {
		return nil
	}

	results, err := s.checkAllWithRetry(ctx, reqs)
	now := time.Now()
	if err != nil {
		for _, d := range defs {
			s.publish(ProbeResult{
				VMName: s.vmName, ProbeID: d.ID,
				Passed: false, Message: "agent error: " + err.Error(),
				EvaluatedAt: now, LastObserved: now,
			})
		}
		return err
	}

	byID := make(map[string]agentclient.ProbeResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	for _, d := range defs {
		r, ok := byID[d.ID]
		if !ok {
			continue
		}
		s.publish(ProbeResult{
			VMName: s.vmName, ProbeID: d.ID,
			Passed: r.Passed, Message: r.Message,
			EvaluatedAt: now, LastObserved: now,
		})
	}
	return nil
}

// checkAllWithRetry retries transport-level failures (the channel itself
// erroring, not an individual probe failing) up to three times.
func (s *Scheduler) checkAllWithRetry(ctx context.Context, reqs []agentclient.ProbeRequest) ([]agentclient.ProbeResult, error) {
	var lastErr error
	results, err := s.client.CheckAll(ctx, reqs)
	if err == nil {
		return results, nil
	}
	lastErr = err

	for _, backoff := range retryBackoffs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		results, err = s.client.CheckAll(ctx, reqs)
		if err == nil {
			return results, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// publish dedupes consecutive identical results by updating LastObserved in
// place, and otherwise fans the result out to every subscriber.
func (s *Scheduler) publish(r ProbeResult) {
	s.mu.Lock()
	prev, ok := s.results[r.ProbeID]
	if ok && prev.Passed == r.Passed && prev.Message == r.Message {
		prev.LastObserved = r.LastObserved
		s.mu.Unlock()
		return
	}
	stored := r
	s.results[r.ProbeID] = &stored
	subs := append([]chan ProbeResult(nil), s.subs...)
	s.mu.Unlock()

	s.sink.Write(r)

	for _, ch := range subs {
		select {
		case ch <- r:
		default:
			s.log.Debug("dropping probe result, subscriber channel full")
		}
	}
}

// specBody re-marshals a probespec.ProbeSpec's concrete kind back into a
// plain map so it can be sent to the agent without probespec.ProbeSpec's
// json:"-" tags suppressing every field (ProbeSpec itself is not directly
// marshalable; only its selected kind-specific struct is).
func specBody(spec probespec.ProbeSpec) any {
	switch spec.Kind {
	case probespec.KindFileContent:
		return withKind(spec.Kind, spec.FileContent)
	case probespec.KindFileExists:
		return withKind(spec.Kind, spec.FileExists)
	case probespec.KindService:
		return withKind(spec.Kind, spec.Service)
	case probespec.KindPort:
		return withKind(spec.Kind, spec.Port)
	case probespec.KindTCPPing:
		return withKind(spec.Kind, spec.TCPPing)
	case probespec.KindK8sNodesReady:
		return withKind(spec.Kind, spec.K8sNodesReady)
	case probespec.KindK8sEndpointsNonEmpty:
		return withKind(spec.Kind, spec.K8sEndpoints)
	case probespec.KindCommand:
		return withKind(spec.Kind, spec.Command)
	case probespec.KindHTTP:
		return withKind(spec.Kind, spec.HTTP)
	default:
		return map[string]any{"kind": spec.Kind}
	}
}

func withKind(kind probespec.KindTag, body any) map[string]any {
	raw, _ := json.Marshal(body)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if m == nil {
		m = make(map[string]any)
	}
	m["kind"] = kind
	return m
}
