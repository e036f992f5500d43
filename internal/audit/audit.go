package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one verification lifecycle record. Phone numbers are masked
// before they reach an Event; codes never do.
type Event struct {
	Timestamp    time.Time         `json:"timestamp"`
	EventType    string            `json:"event_type"`
	Subject      string            `json:"subject,omitempty"`
	SessionToken string            `json:"session_token,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Method       string            `json:"method,omitempty"`
	IP           string            `json:"ip,omitempty"`
	Status       string            `json:"status,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

// Emit discards event.
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a sink with the given buffer size. Non-positive
// sizes become 1.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

// Emit blocks until the event is buffered or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the buffer.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit writes event as a single JSON line. Marshal and write errors are
// ignored.
func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(append(data, '\n'))
}

// ZerologSink writes events as structured log lines. Failures log at warn,
// everything else at info.
type ZerologSink struct {
	log zerolog.Logger
}

// NewZerologSink returns a sink logging through log.
func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log}
}

// Emit logs event with its fields attached.
func (s *ZerologSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	e := s.log.Info()
	if !event.Success {
		e = s.log.Warn()
	}
	e = e.Time("event_time", event.Timestamp).
		Str("event_type", event.EventType).
		Bool("success", event.Success)
	if event.SessionToken != "" {
		e = e.Str("token", event.SessionToken)
	}
	if event.Subject != "" {
		e = e.Str("subject", event.Subject)
	}
	if event.Phone != "" {
		e = e.Str("phone", event.Phone)
	}
	if event.Method != "" {
		e = e.Str("method", event.Method)
	}
	if event.IP != "" {
		e = e.Str("ip", event.IP)
	}
	if event.Status != "" {
		e = e.Str("status", event.Status)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		e = e.Str(k, v)
	}
	e.Msg("audit")
}
