// Package usage records every provider request for quota accounting and
// cost review. Recording is fire-and-forget: a sink failure must never
// fail or slow the fetch that produced the entry.
package usage

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockwatchdog/marketdata/internal/observ"
)

// Entry is one recorded provider request.
type Entry struct {
	ID               string    `json:"id"`
	API              string    `json:"api_name"`
	ResponseStatus   int       `json:"response_status"`
	Symbol           string    `json:"symbol,omitempty"`
	RequestType      string    `json:"request_type,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewEntry builds a fully-populated entry for the current moment.
func NewEntry(api string, status int, symbol, requestType string, elapsed time.Duration) Entry {
	return Entry{
		ID:               uuid.NewString(),
		API:              api,
		ResponseStatus:   status,
		Symbol:           symbol,
		RequestType:      requestType,
		ProcessingTimeMs: elapsed.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}
}

// Sink accepts usage entries.
type Sink interface {
	LogUsage(e Entry)
	Close() error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) LogUsage(Entry) {}
func (NopSink) Close() error   { return nil }

// Multi fans entries out to several sinks.
type Multi []Sink

func (m Multi) LogUsage(e Entry) {
	for _, s := range m {
		s.LogUsage(e)
	}
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Async decouples the fetch path from sink latency with a bounded buffer.
// When the buffer is full the entry is dropped and counted; blocking the
// caller is never an option.
type Async struct {
	sink Sink
	ch   chan Entry
	done chan struct{}
	once sync.Once
}

func NewAsync(sink Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink: sink,
		ch:   make(chan Entry, buffer),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	for e := range a.ch {
		a.sink.LogUsage(e)
	}
	close(a.done)
}

func (a *Async) LogUsage(e Entry) {
	select {
	case a.ch <- e:
	default:
		observ.RecordUsageDropped()
		observ.Warn("usage_entry_dropped", map[string]any{"api": e.API})
	}
}

// Close flushes buffered entries and closes the wrapped sink.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.ch) })
	<-a.done
	return a.sink.Close()
}
