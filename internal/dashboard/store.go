package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// logRecord is the serialisable form of one captured log entry.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logRing retains the most recent log entries flowing through the process
// logger. It implements logrus.Hook so it can be attached directly, and keeps
// a fixed-size ring so a long crawl cannot grow it without bound.
type logRing struct {
	mu      sync.RWMutex
	records []logRecord
	next    int
	wrapped bool
	enabled atomic.Bool
}

func newLogRing(limit int) *logRing {
	if limit <= 0 {
		limit = 200
	}
	r := &logRing{records: make([]logRecord, limit)}
	r.enabled.Store(true)
	return r
}

func (r *logRing) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (r *logRing) Fire(entry *logrus.Entry) error {
	if !r.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}

	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}

	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}

			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	r.mu.Lock()
	r.records[r.next] = record
	r.next++
	if r.next == len(r.records) {
		r.next = 0
		r.wrapped = true
	}
	r.mu.Unlock()
	return nil
}

// snapshot returns the retained entries oldest first.
func (r *logRing) snapshot() []logRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.wrapped {
		out := make([]logRecord, r.next)
		copy(out, r.records[:r.next])
		return out
	}
	out := make([]logRecord, 0, len(r.records))
	out = append(out, r.records[r.next:]...)
	out = append(out, r.records[:r.next]...)
	return out
}

// close stops capture. The hook stays registered on the logger but becomes a
// no-op, since logrus has no way to remove a hook.
func (r *logRing) close() {
	r.enabled.Store(false)
}
