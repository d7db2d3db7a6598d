package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockwatchdog/marketdata/internal/observ"
)

// FileSink appends entries to a JSONL file, one object per line.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &FileSink{path: path}, nil
}

func (s *FileSink) LogUsage(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		observ.Error("usage_write_failed", map[string]any{"path": s.path, "error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		observ.Error("usage_write_failed", map[string]any{"path": s.path, "error": err.Error()})
		return
	}
	defer f.Close()
	if _, err := f.WriteString(string(data) + "\n"); err != nil {
		observ.Error("usage_write_failed", map[string]any{"path": s.path, "error": err.Error()})
	}
}

func (s *FileSink) Close() error { return nil }
