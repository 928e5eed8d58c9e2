package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
)

// scanner buffer sizing: a single delta frame is small, but annotation-heavy
// frames and tool payloads can run long.
const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 1024 * 1024
)

// Events parses a Server-Sent Events body into typed events in arrival
// order. Frames with unknown event types are logged and skipped. The
// iterator stops after yielding the first error (malformed frame, read
// failure, or context cancellation).
func Events(ctx context.Context, r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

		var eventType string
		var data strings.Builder

		flush := func() (Event, error, bool) {
			defer func() {
				eventType = ""
				data.Reset()
			}()
			if eventType == "" && data.Len() == 0 {
				return nil, nil, false
			}
			ev, err := decodeEvent(eventType, []byte(data.String()))
			if err != nil {
				return nil, err, true
			}
			if ev == nil {
				slog.Debug("skipping unknown stream event", "type", eventType)
				return nil, nil, false
			}
			return ev, nil, true
		}

		for scanner.Scan() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			line := scanner.Text()
			switch {
			case line == "":
				ev, err, ok := flush()
				if !ok {
					continue
				}
				if !yield(ev, err) || err != nil {
					return
				}
			case strings.HasPrefix(line, "event:"):
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			default:
				// id:, retry: and comment lines carry no event payload.
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("read event stream: %w", err))
			return
		}

		// A final frame without a trailing blank line still counts.
		if ev, err, ok := flush(); ok {
			yield(ev, err)
		}
	}
}

// WriteEvent writes one SSE frame and flushes it when the writer supports
// flushing. The framing matches what Events parses.
func WriteEvent(w io.Writer, ev Event) error {
	eventType, data, err := Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
