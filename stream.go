package apikit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Stream is a response type for binary or streaming responses.
// Return *Stream from a handler to bypass JSON encoding.
type Stream struct {
	ContentType string
	Status      int
	Body        io.Reader
}

func (s *Stream) response(defaultStatus int) *Response {
	h := make(http.Header)
	if s.ContentType != "" {
		h.Set("Content-Type", s.ContentType)
	}
	status := s.Status
	if status == 0 {
		status = defaultStatus
	}
	body := s.Body
	if body == nil {
		body = http.NoBody
	}
	return &Response{Status: status, Header: h, Stream: body}
}

// SSEStream is a response type for server-sent events.
// The handler writes events to the channel and closes it when done; the
// framework flushes each event as it is written.
type SSEStream struct {
	Events <-chan SSEEvent
}

// SSEEvent is a single server-sent event.
type SSEEvent struct {
	// Event is the event type (optional). Maps to the "event:" field.
	Event string
	// Data is the event payload. If it's a struct/map, it will be JSON-encoded.
	Data any
	// ID is the event ID (optional). Maps to the "id:" field.
	ID string
}

func (s *SSEStream) response() *Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")

	pr, pw := io.Pipe()
	go func() {
		for event := range s.Events {
			//nolint:errcheck // reader gone; keep draining until the handler closes Events
			writeSSEEvent(pw, event)
		}
		pw.Close()
	}()
	return &Response{Status: http.StatusOK, Header: h, Stream: pr}
}

func writeSSEEvent(w io.Writer, event SSEEvent) error {
	if event.ID != "" {
		if err := writeSSEField(w, "id", event.ID); err != nil {
			return err
		}
	}
	if event.Event != "" {
		if err := writeSSEField(w, "event", event.Event); err != nil {
			return err
		}
	}

	var data string
	switch v := event.Data.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			data = err.Error()
		} else {
			data = string(b)
		}
	}
	if err := writeSSEField(w, "data", data); err != nil {
		return err
	}

	_, err := io.WriteString(w, "\n")
	return err
}

func writeSSEField(w io.Writer, name, value string) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", name, value)
	return err
}

// copyFlush copies src to w, flushing after every chunk when w supports it.
func copyFlush(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32<<10)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
