package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"testing"

	"github.com/lidahealth/lida/internal/transcript"
)

// fakeBackend replays scripted event sequences and records submitted tool
// outputs.
type fakeBackend struct {
	messageEvents []Event
	actionEvents  []Event
	streamErr     error

	sentContent string
	submitted   []ToolOutput
	runID       string
}

func events(evs []Event, tail error) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for _, ev := range evs {
			if !yield(ev, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

func (f *fakeBackend) StreamMessage(_ context.Context, _, content string) (iter.Seq2[Event, error], error) {
	f.sentContent = content
	return events(f.messageEvents, f.streamErr), nil
}

func (f *fakeBackend) SubmitToolOutputs(_ context.Context, _, runID string, outputs []ToolOutput) (iter.Seq2[Event, error], error) {
	f.runID = runID
	f.submitted = outputs
	return events(f.actionEvents, nil), nil
}

func TestExchangeConcatenatesDeltas(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{
			TextCreated{},
			TextDelta{Value: "The "},
			TextDelta{Value: "answer "},
			TextDelta{Value: "is 42."},
			RunCompleted{},
		},
	}
	tr := transcript.New()
	in := NewInterpreter(backend, tr, nil)

	if err := in.Exchange(context.Background(), "thread-1", "question"); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	last, _ := tr.Last()
	if last.Text != "The answer is 42." {
		t.Fatalf("unexpected text: %q", last.Text)
	}
	if backend.sentContent != "question" {
		t.Fatalf("content not forwarded: %q", backend.sentContent)
	}
}

func TestExchangeRendersCodeAndImages(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{
			ToolCallCreated{Kind: KindCodeExecution},
			ToolCallDelta{Kind: KindCodeExecution, Fragment: "import math\n"},
			ToolCallDelta{Kind: KindCodeExecution, Fragment: "print(math.pi)"},
			ToolCallCreated{Kind: "retrieval"}, // not rendered
			TextCreated{},
			TextDelta{Value: "Here is the chart:"},
			ImageReference{FileID: "file-9"},
			RunCompleted{},
		},
	}
	tr := transcript.New()
	in := NewInterpreter(backend, tr, nil)

	if err := in.Exchange(context.Background(), "thread-1", "plot pi"); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (code + assistant), got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != transcript.RoleCode || msgs[0].Text != "import math\nprint(math.pi)" {
		t.Errorf("unexpected code message: %+v", msgs[0])
	}
	if !strings.Contains(msgs[1].Text, "(/files/file-9)") {
		t.Errorf("image reference not appended: %q", msgs[1].Text)
	}
}

func TestExchangeAppliesAnnotations(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{
			TextCreated{},
			TextDelta{
				Value: "saved to sandbox:/plan.pdf",
				Annotations: []transcript.Annotation{
					{MatchText: "sandbox:/plan.pdf", TargetFileID: "file-3"},
				},
			},
			RunCompleted{},
		},
	}
	tr := transcript.New()
	in := NewInterpreter(backend, tr, nil)

	if err := in.Exchange(context.Background(), "thread-1", "make a plan"); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	last, _ := tr.Last()
	if last.Text != "saved to /files/file-3" {
		t.Fatalf("annotation not applied: %q", last.Text)
	}
}

func TestRequiresActionSubmitsOneOutputPerCall(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{
			RunRequiresAction{
				RunID: "run-7",
				Calls: []ToolCall{{ID: "a", Kind: "lookup"}, {ID: "b", Kind: "lookup"}},
			},
		},
		actionEvents: []Event{
			TextCreated{},
			TextDelta{Value: "done"},
			RunCompleted{},
		},
	}
	tr := transcript.New()
	handler := func(_ context.Context, call ToolCall) (string, error) {
		if call.ID == "a" {
			return "", errors.New("lookup exploded")
		}
		return "b-result", nil
	}
	in := NewInterpreter(backend, tr, handler)

	if err := in.Exchange(context.Background(), "thread-1", "use tools"); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	if backend.runID != "run-7" {
		t.Fatalf("run id not forwarded: %q", backend.runID)
	}
	// The backend requires one output per call id even when a handler fails.
	if len(backend.submitted) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(backend.submitted))
	}
	byID := map[string]string{}
	for _, out := range backend.submitted {
		byID[out.ToolCallID] = out.Output
	}
	if !strings.Contains(byID["a"], "lookup exploded") {
		t.Errorf("failure not encoded in output: %q", byID["a"])
	}
	if byID["b"] != "b-result" {
		t.Errorf("unexpected output for b: %q", byID["b"])
	}

	// The continuation stream still lands in the transcript.
	last, _ := tr.Last()
	if last.Text != "done" {
		t.Errorf("continuation not consumed: %q", last.Text)
	}
}

func TestToolHandlerPanicBecomesErrorOutput(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{
			RunRequiresAction{RunID: "run-1", Calls: []ToolCall{{ID: "a"}}},
		},
		actionEvents: []Event{RunCompleted{}},
	}
	handler := func(context.Context, ToolCall) (string, error) {
		panic("handler bug")
	}
	in := NewInterpreter(backend, transcript.New(), handler)

	if err := in.Exchange(context.Background(), "thread-1", "x"); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if len(backend.submitted) != 1 || !strings.Contains(backend.submitted[0].Output, "handler bug") {
		t.Fatalf("panic not encoded: %+v", backend.submitted)
	}
}

func TestRunFailedSurfacesAsRunError(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{
			TextCreated{},
			TextDelta{Value: "partial"},
			RunFailed{Reason: "model overloaded"},
		},
	}
	tr := transcript.New()
	in := NewInterpreter(backend, tr, nil)

	err := in.Exchange(context.Background(), "thread-1", "q")
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Reason != "model overloaded" {
		t.Fatalf("expected RunError, got %v", err)
	}
	// Partial content is never rolled back.
	last, _ := tr.Last()
	if last.Text != "partial" {
		t.Fatalf("partial content lost: %q", last.Text)
	}
}

func TestStreamErrorKeepsPartialTranscript(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{TextCreated{}, TextDelta{Value: "par"}},
		streamErr:     fmt.Errorf("connection reset"),
	}
	tr := transcript.New()
	in := NewInterpreter(backend, tr, nil)

	if err := in.Exchange(context.Background(), "thread-1", "q"); err == nil {
		t.Fatal("expected stream error")
	}
	last, _ := tr.Last()
	if last.Text != "par" {
		t.Fatalf("partial content lost: %q", last.Text)
	}
}

func TestDeltaWithoutCreatedSynthesizesMessage(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		messageEvents: []Event{
			TextDelta{Value: "no created event"},
			RunCompleted{},
		},
	}
	tr := transcript.New()
	in := NewInterpreter(backend, tr, nil)

	if err := in.Exchange(context.Background(), "thread-1", "q"); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	last, ok := tr.Last()
	if !ok || last.Role != transcript.RoleAssistant || last.Text != "no created event" {
		t.Fatalf("placeholder not synthesized: %+v", last)
	}
}

func TestResolveKeepsBatchOrderIndependence(t *testing.T) {
	t.Parallel()

	calls := make([]ToolCall, 8)
	for i := range calls {
		calls[i] = ToolCall{ID: fmt.Sprintf("call-%d", i)}
	}
	in := NewInterpreter(&fakeBackend{}, transcript.New(), func(_ context.Context, c ToolCall) (string, error) {
		return "out-" + c.ID, nil
	})

	outputs := in.resolve(context.Background(), calls)
	if len(outputs) != len(calls) {
		t.Fatalf("expected %d outputs, got %d", len(calls), len(outputs))
	}
	ids := make([]string, 0, len(outputs))
	for _, out := range outputs {
		ids = append(ids, out.ToolCallID)
		if out.Output != "out-"+out.ToolCallID {
			t.Errorf("mismatched output: %+v", out)
		}
	}
	sort.Strings(ids)
	for i, id := range ids {
		if id != fmt.Sprintf("call-%d", i) {
			t.Fatalf("missing output for call-%d: %v", i, ids)
		}
	}
}
