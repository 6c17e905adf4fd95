// Package governance provides outbound adapter implementations of the
// governance domain's storage ports: a sqlite-backed credential/policy
// store, an in-memory policy cache and rate-limit counter store, and an
// audit sink. Adapted from the proxy's existing in-memory audit store
// ring-buffer pattern and generalised to the three-level policy model.
package governance

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
)

const defaultAuditRingCapacity = 1000

// RingAuditSink implements governance.AuditSink, writing each record as a
// line of JSON to an underlying writer (stdout by default) while also
// keeping a bounded in-memory ring buffer for recent-record inspection.
type RingAuditSink struct {
	mu      sync.Mutex
	encoder *json.Encoder
	writer  io.Writer
	recent  []governance.AuditRecord
	cap     int
}

// NewRingAuditSink creates a sink writing to stdout with the default ring
// capacity.
func NewRingAuditSink() *RingAuditSink {
	return NewRingAuditSinkWithWriter(os.Stdout, defaultAuditRingCapacity)
}

// NewRingAuditSinkWithWriter creates a sink writing to w with the given
// ring buffer capacity.
func NewRingAuditSinkWithWriter(w io.Writer, capacity int) *RingAuditSink {
	if capacity <= 0 {
		capacity = defaultAuditRingCapacity
	}
	return &RingAuditSink{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]governance.AuditRecord, 0, capacity),
		cap:     capacity,
	}
}

// Emit writes record as a JSON line and appends it to the ring buffer.
func (s *RingAuditSink) Emit(ctx context.Context, record governance.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(record); err != nil {
		return err
	}

	if len(s.recent) >= s.cap {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = record
	} else {
		s.recent = append(s.recent, record)
	}
	return nil
}

// Recent returns the n most recent audit records, newest first.
func (s *RingAuditSink) Recent(n int) []governance.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.recent)
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}
	out := make([]governance.AuditRecord, n)
	for i := 0; i < n; i++ {
		out[i] = s.recent[total-1-i]
	}
	return out
}

var _ governance.AuditSink = (*RingAuditSink)(nil)
