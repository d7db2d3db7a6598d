package ratelimit

// APIStatus is the dashboard view of one api's admission state.
type APIStatus struct {
	RequestsLastHour   int            `json:"requests_last_hour"`
	RequestsLastMinute int            `json:"requests_last_minute"`
	HourlyLimit        int            `json:"hourly_limit"`
	MinuteLimit        int            `json:"minute_limit"`
	UsagePercentage    float64        `json:"usage_percentage"`
	BackoffRemaining   float64        `json:"backoff_remaining"`
	QueuedRequests     map[string]int `json:"queued_requests"`
	TotalQueued        int            `json:"total_queued"`
}

// Status reports every configured api's usage, limits, lock state and
// queue depths. Read-only. Unknown apis admitted permissively never
// appear here; they carry no state.
func (m *Manager) Status() map[string]APIStatus {
	m.mu.RLock()
	names := make([]string, 0, len(m.apis))
	states := make([]*apiState, 0, len(m.apis))
	for name, s := range m.apis {
		names = append(names, name)
		states = append(states, s)
	}
	m.mu.RUnlock()

	out := make(map[string]APIStatus, len(names))
	for i, s := range states {
		s.mu.Lock()
		now := m.now()
		s.window.prune(now)
		hour := s.window.countWithin(hourWindow, now)
		minute := s.window.countWithin(minuteWindow, now)
		_, remaining := s.backoff.locked(now)
		st := APIStatus{
			RequestsLastHour:   hour,
			RequestsLastMinute: minute,
			HourlyLimit:        s.limits.RequestsPerHour,
			MinuteLimit:        s.limits.RequestsPerMinute,
			BackoffRemaining:   remaining.Seconds(),
			QueuedRequests:     s.queue.depths(),
			TotalQueued:        s.queue.total(),
		}
		if s.limits.RequestsPerHour > 0 {
			st.UsagePercentage = float64(hour) / float64(s.limits.RequestsPerHour) * 100
		}
		s.mu.Unlock()
		out[names[i]] = st
	}
	return out
}
