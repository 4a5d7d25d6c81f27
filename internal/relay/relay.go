// Package relay forwards tokens from a provider event stream to a client.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

const (
	// DefaultDeltaPath locates the text delta in a chat completion chunk.
	DefaultDeltaPath = "choices.0.delta.content"

	// maxFrameSize bounds a single event-stream line.
	maxFrameSize = 1024 * 1024

	doneMarker = "[DONE]"
)

// StreamProtocolError means the upstream stream could not be decoded. The
// relay stops at the offending frame and forwards nothing from it.
type StreamProtocolError struct {
	Reason string
	Frame  string
	Err    error
}

func (e *StreamProtocolError) Error() string {
	msg := "stream protocol error: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StreamProtocolError) Unwrap() error {
	return e.Err
}

// Stats describes what a Forward call sent downstream.
type Stats struct {
	Tokens int
	Bytes  int
	Done   bool
}

// Relay decodes an event stream and forwards text deltas.
type Relay struct {
	deltaPath string
}

// Option configures a Relay.
type Option func(*Relay)

// WithDeltaPath overrides the gjson path of the text delta.
func WithDeltaPath(path string) Option {
	return func(r *Relay) {
		r.deltaPath = path
	}
}

// New creates a new relay.
func New(opts ...Option) *Relay {
	r := &Relay{deltaPath: DefaultDeltaPath}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Forward reads events from src and writes each non-empty text delta to dst
// as soon as it arrives, flushing dst when it is an http.Flusher. It returns
// nil on the [DONE] marker or when src ends without one, and a
// *StreamProtocolError on a frame that does not decode. The caller owns src
// and must close it.
func (r *Relay) Forward(ctx context.Context, src io.Reader, dst io.Writer) (Stats, error) {
	var stats Stats
	flusher, _ := dst.(http.Flusher)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var (
		event string
		data  [][]byte
	)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := scanner.Bytes()

		// A blank line dispatches the pending event.
		if len(line) == 0 {
			if len(data) == 0 {
				event = ""
				continue
			}
			payload := bytes.Join(data, []byte("\n"))
			done, err := r.dispatch(event, payload, dst, flusher, &stats)
			if err != nil || done {
				return stats, err
			}
			event, data = "", nil
			continue
		}

		// Comments keep the connection alive and carry nothing.
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			data = append(data, append([]byte(nil), value...))
		case "event":
			event = string(value)
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return stats, &StreamProtocolError{Reason: "frame too large", Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
	}

	// Upstream closed without [DONE]; a partial reply is still a reply. An
	// event cut off before its blank line is dropped.
	return stats, nil
}

func (r *Relay) dispatch(event string, payload []byte, dst io.Writer, flusher http.Flusher, stats *Stats) (bool, error) {
	if string(bytes.TrimSpace(payload)) == doneMarker {
		stats.Done = true
		return true, nil
	}

	if !gjson.ValidBytes(payload) {
		return false, &StreamProtocolError{Reason: "malformed data frame", Frame: truncate(string(payload), 200)}
	}

	if event == "error" {
		msg := gjson.GetBytes(payload, "error.message").String()
		if msg == "" {
			msg = gjson.GetBytes(payload, "message").String()
		}
		return false, &StreamProtocolError{Reason: "upstream error event", Frame: truncate(string(payload), 200), Err: errors.New(msg)}
	}

	delta := gjson.GetBytes(payload, r.deltaPath)
	if delta.Type != gjson.String || delta.Str == "" {
		return false, nil
	}

	n, err := io.WriteString(dst, delta.Str)
	stats.Bytes += n
	if err != nil {
		return false, fmt.Errorf("failed to write token: %w", err)
	}
	stats.Tokens++
	if flusher != nil {
		flusher.Flush()
	}

	return false, nil
}

// splitField splits an event-stream line into field name and value, dropping
// the single optional space after the colon.
func splitField(line []byte) (string, []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
