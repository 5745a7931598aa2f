// Package sse writes Server-Sent Events to a fasthttp stream writer.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Event types emitted by the job progress stream
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event represents an SSE event to be sent to clients
type Event struct {
	// Event is the SSE event type. No "event:" line is written when empty.
	Event string

	// Data is JSON-encoded unless it is already a string or []byte
	Data interface{}

	// ID lets a reconnecting client resume with Last-Event-ID
	ID string

	// Retry is the reconnection delay in milliseconds
	Retry int
}

// PrepareHeaders sets the response headers of an event stream
func PrepareHeaders(c *fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no") // Disable nginx buffering
}

// Send writes an SSE event and flushes immediately.
// A flush error means the client went away.
func Send(w *bufio.Writer, event Event) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}

	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return fmt.Errorf("failed to write retry: %w", err)
		}
	}

	if event.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
			return fmt.Errorf("failed to write event type: %w", err)
		}
	}

	var payload string
	switch v := event.Data.(type) {
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		payload = string(data)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	return w.Flush()
}

// SendError sends an error event carrying a message
func SendError(w *bufio.Writer, message string) error {
	return Send(w, Event{
		Event: EventError,
		Data:  map[string]string{"type": "error", "message": message},
	})
}

// SendKeepAlive sends a comment line so proxies keep an idle stream open
func SendKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
		return fmt.Errorf("failed to write keepalive: %w", err)
	}
	return w.Flush()
}
