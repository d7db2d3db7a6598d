package ratelimit

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockwatchdog/marketdata/internal/observ"
)

const (
	hourWindow   = time.Hour
	minuteWindow = time.Minute
)

// Limits is one api's admission configuration. RequestsPerMinute zero
// means no per-minute cap; BurstLimit is enforced by the provider client,
// not by admission math.
type Limits struct {
	RequestsPerHour   int
	RequestsPerMinute int
	BurstLimit        int
	BackoffEnabled    bool
	BaseDelay         time.Duration
	MaxDelay          time.Duration
}

// apiState is the aggregate owned per api name. Its mutex covers the
// admission triad: window append+count, backoff read+write, queue ops.
type apiState struct {
	mu      sync.Mutex
	limits  Limits
	window  slidingWindow
	backoff backoffState
	queue   *priorityQueue
}

// Manager is the single admission authority for every api name. All quota
// checks in the system go through here; nothing else keeps its own count.
type Manager struct {
	mu   sync.RWMutex
	apis map[string]*apiState

	now func() time.Time
}

func NewManager(limits map[string]Limits) *Manager {
	m := &Manager{
		apis: make(map[string]*apiState, len(limits)),
		now:  time.Now,
	}
	for name, l := range limits {
		m.apis[name] = &apiState{limits: l, queue: newPriorityQueue()}
	}
	return m
}

func (m *Manager) state(api string) *apiState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.apis[api]
}

// APIs returns the known api names, sorted.
func (m *Manager) APIs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.apis))
	for name := range m.apis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanMakeRequest is the read-only admission probe: may a request for this
// api run now, and if not, roughly how long to wait. The caller that goes
// on to issue the request must Record it separately; concurrent callers
// should prefer Admit, which does both under the aggregate lock.
//
// An unknown api name is logged and admitted permissively.
func (m *Manager) CanMakeRequest(api string, p Priority) (bool, float64) {
	s := m.state(api)
	if s == nil {
		observ.Warn("unknown_api", map[string]any{"api": api})
		return true, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed, wait, reason := s.canRequest(p, m.now())
	if !allowed {
		observ.RecordAdmissionDenied(api, reason)
	}
	return allowed, wait
}

// Admit runs the admission check and, when allowed, records the request in
// the usage window before releasing the aggregate lock. This closes the
// check-then-act gap for concurrent callers.
func (m *Manager) Admit(api string, p Priority) (bool, float64) {
	s := m.state(api)
	if s == nil {
		observ.Warn("unknown_api", map[string]any{"api": api})
		return true, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	allowed, wait, reason := s.canRequest(p, now)
	if !allowed {
		observ.RecordAdmissionDenied(api, reason)
		return false, wait
	}
	s.window.record(now)
	return true, 0
}

// Record appends an admitted request to the api's usage window. Call order
// must match real request issue order.
func (m *Manager) Record(api string) {
	s := m.state(api)
	if s == nil {
		observ.Warn("unknown_api", map[string]any{"api": api})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.record(m.now())
}

// IsLocked reports whether the api is inside a backoff lock and the exact
// remaining seconds.
func (m *Manager) IsLocked(api string) (bool, float64) {
	s := m.state(api)
	if s == nil {
		return false, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, remaining := s.backoff.locked(m.now())
	return locked, remaining.Seconds()
}

// RequestSlot admits-and-records immediately when possible; otherwise it
// enqueues the request for a later drain. Reports whether to run now.
func (m *Manager) RequestSlot(api, symbol, requestType string, p Priority) bool {
	s := m.state(api)
	if s == nil {
		observ.Warn("unknown_api", map[string]any{"api": api})
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	allowed, _, reason := s.canRequest(p, now)
	if allowed {
		s.window.record(now)
		return true
	}
	observ.RecordAdmissionDenied(api, reason)
	r := &Request{
		ID:          uuid.NewString(),
		API:         api,
		Symbol:      symbol,
		RequestType: requestType,
		Priority:    p,
		EnqueuedAt:  now,
		MaxRetries:  defaultMaxRetries,
	}
	s.queue.push(r)
	observ.Log("queue_enqueue", map[string]any{
		"api": api, "symbol": symbol, "priority": p.String(), "id": r.ID,
	})
	observ.SetQueueDepth(api, p.String(), s.queue.depth(p))
	return false
}

// DrainNext pops the next admissible queued request in strict tier order:
// critical, high, normal, low. Stale entries (older than an hour) are
// discarded in passing. A fresh head that is still not admissible is put
// back and blocks the whole drain; queued work never jumps the line.
// The returned request has already been recorded against the window.
func (m *Manager) DrainNext(api string) *Request {
	s := m.state(api)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range drainOrder {
		for {
			r := s.queue.pop(p)
			if r == nil {
				break
			}
			now := m.now()
			if now.Sub(r.EnqueuedAt) > staleAfter {
				observ.Log("queue_discard_stale", map[string]any{
					"api": api, "symbol": r.Symbol, "id": r.ID,
				})
				observ.SetQueueDepth(api, p.String(), s.queue.depth(p))
				continue
			}
			allowed, _, _ := s.canRequest(r.Priority, now)
			if !allowed {
				s.queue.pushFront(r)
				return nil
			}
			s.window.record(now)
			observ.SetQueueDepth(api, p.String(), s.queue.depth(p))
			return r
		}
	}
	return nil
}

// OnFailure applies the backoff policy for a classified provider failure.
// Rate limiting escalates the exponential delay and permanently shrinks
// the hourly quota; server errors and forbidden responses apply fixed
// locks. Success never resets any of this.
func (m *Manager) OnFailure(api string, kind FailureKind) {
	s := m.state(api)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	switch kind {
	case FailureRateLimited:
		if s.limits.BackoffEnabled {
			d := s.backoff.escalate(s.limits.BaseDelay, s.limits.MaxDelay, now)
			observ.RecordBackoffLock(api, string(kind))
			observ.Warn("backoff_lock", map[string]any{
				"api": api, "kind": string(kind), "delay_seconds": d.Seconds(),
			})
		}
		s.limits.RequestsPerHour = int(float64(s.limits.RequestsPerHour) * quotaShrinkFactor)
		observ.Warn("quota_shrunk", map[string]any{
			"api": api, "hourly_limit": s.limits.RequestsPerHour,
		})
	case FailureServerError:
		s.backoff.lockFor(serverErrorLock, now)
		observ.RecordBackoffLock(api, string(kind))
		observ.Warn("backoff_lock", map[string]any{
			"api": api, "kind": string(kind), "delay_seconds": serverErrorLock.Seconds(),
		})
	case FailureForbidden:
		s.backoff.lockFor(forbiddenLock, now)
		observ.RecordBackoffLock(api, string(kind))
		observ.Error("backoff_lock", map[string]any{
			"api": api, "kind": string(kind), "delay_seconds": forbiddenLock.Seconds(),
		})
	}
	if locked, remaining := s.backoff.locked(now); locked {
		observ.SetBackoffRemaining(api, remaining.Seconds())
	}
}

// SetLimits replaces an api's limit configuration, creating state for a
// new api name. This is the explicit recovery path for a quota degraded by
// rate-limit shrinks. It clears neither an active lock nor the escalated
// delay.
func (m *Manager) SetLimits(api string, l Limits) {
	m.mu.Lock()
	s, ok := m.apis[api]
	if !ok {
		m.apis[api] = &apiState{limits: l, queue: newPriorityQueue()}
		m.mu.Unlock()
		observ.Log("limits_set", map[string]any{"api": api, "hourly_limit": l.RequestsPerHour})
		return
	}
	m.mu.Unlock()

	s.mu.Lock()
	s.limits = l
	s.mu.Unlock()
	observ.Log("limits_set", map[string]any{"api": api, "hourly_limit": l.RequestsPerHour})
}

// Limits returns the current limit configuration for an api.
func (m *Manager) Limits(api string) (Limits, bool) {
	s := m.state(api)
	if s == nil {
		return Limits{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits, true
}

// canRequest is the admission algorithm. Callers hold s.mu.
func (s *apiState) canRequest(p Priority, now time.Time) (allowed bool, waitSeconds float64, reason string) {
	if locked, remaining := s.backoff.locked(now); locked {
		return false, remaining.Seconds(), "backoff"
	}

	s.window.prune(now)
	hourCount := s.window.countWithin(hourWindow, now)
	minuteCount := s.window.countWithin(minuteWindow, now)

	hourOK := float64(hourCount) < float64(s.limits.RequestsPerHour)*admissionFactor[p]
	minuteOK := s.limits.RequestsPerMinute == 0 || minuteCount < s.limits.RequestsPerMinute
	if hourOK && minuteOK {
		return true, 0, ""
	}

	var wait float64
	if !minuteOK && s.limits.RequestsPerMinute > 0 {
		wait = 60.0 / float64(s.limits.RequestsPerMinute)
		reason = "minute_limit"
	} else {
		wait = 3600.0
		if s.limits.RequestsPerHour > 0 {
			wait = 3600.0 / float64(s.limits.RequestsPerHour)
		}
		reason = "hour_limit"
	}
	return false, wait * waitScale[p], reason
}
