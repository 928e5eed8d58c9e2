package stream

import (
	"context"
	"strings"
	"testing"
)

func collect(t *testing.T, input string) ([]Event, error) {
	t.Helper()
	var events []Event
	for ev, err := range Events(context.Background(), strings.NewReader(input)) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestEventsParsesFramesInOrder(t *testing.T) {
	t.Parallel()

	input := "event: text.created\ndata: {}\n\n" +
		"event: text.delta\ndata: {\"value\":\"hi\"}\n\n" +
		"event: run.completed\ndata: {}\n\n"

	events, err := collect(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if _, ok := events[0].(TextCreated); !ok {
		t.Errorf("expected TextCreated, got %T", events[0])
	}
	delta, ok := events[1].(TextDelta)
	if !ok || delta.Value != "hi" {
		t.Errorf("expected TextDelta{hi}, got %#v", events[1])
	}
	if _, ok := events[2].(RunCompleted); !ok {
		t.Errorf("expected RunCompleted, got %T", events[2])
	}
}

func TestEventsSkipsUnknownTypes(t *testing.T) {
	t.Parallel()

	input := "event: thread.heartbeat\ndata: {}\n\n" +
		"event: text.delta\ndata: {\"value\":\"x\"}\n\n"

	events, err := collect(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("unknown event must be skipped, got %d events", len(events))
	}
}

func TestEventsIgnoresIDAndRetryLines(t *testing.T) {
	t.Parallel()

	input := "retry: 5000\n\n" +
		"id: 7\nevent: text.delta\ndata: {\"value\":\"y\"}\n\n"

	events, err := collect(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestEventsHandlesMissingTrailingBlankLine(t *testing.T) {
	t.Parallel()

	input := "event: run.failed\ndata: {\"reason\":\"boom\"}"
	events, err := collect(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	failed, ok := events[0].(RunFailed)
	if !ok || failed.Reason != "boom" {
		t.Fatalf("expected RunFailed{boom}, got %#v", events[0])
	}
}

func TestEventsReportsMalformedPayload(t *testing.T) {
	t.Parallel()

	input := "event: text.delta\ndata: {not json\n\n"
	if _, err := collect(t, input); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestWriteEventRoundTrip(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	events := []Event{
		TextCreated{},
		TextDelta{Value: "chunk"},
		RunRequiresAction{RunID: "run-1", Calls: []ToolCall{{ID: "a", Kind: "lookup"}}},
		RunCompleted{},
	}
	for _, ev := range events {
		if err := WriteEvent(&sb, ev); err != nil {
			t.Fatalf("WriteEvent failed: %v", err)
		}
	}

	parsed, err := collect(t, sb.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(parsed))
	}
	ra, ok := parsed[2].(RunRequiresAction)
	if !ok || ra.RunID != "run-1" || len(ra.Calls) != 1 || ra.Calls[0].ID != "a" {
		t.Fatalf("round trip lost data: %#v", parsed[2])
	}
}
