package stream

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/lidahealth/lida/internal/transcript"
	"golang.org/x/sync/errgroup"
)

// Backend is the conversation surface the interpreter consumes. Implemented
// by assistant.Client; tests substitute fakes.
type Backend interface {
	// StreamMessage posts user content to a thread and opens its event stream.
	StreamMessage(ctx context.Context, threadID, content string) (iter.Seq2[Event, error], error)

	// SubmitToolOutputs resumes a paused run with one output per tool call
	// and opens the continuation event stream.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (iter.Seq2[Event, error], error)
}

// ToolOutput pairs a tool call id with its result. The backend requires one
// output for every call in a requires-action batch.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// ToolHandler resolves a delegated tool call. A nil handler resolves every
// call to an empty output.
type ToolHandler func(ctx context.Context, call ToolCall) (string, error)

// RunError reports a run that reached its failing terminal state. The
// transcript keeps whatever partial content was appended.
type RunError struct {
	Reason string
}

func (e *RunError) Error() string {
	if e.Reason == "" {
		return "assistant run failed"
	}
	return "assistant run failed: " + e.Reason
}

// runContext is the per-exchange state. Owned by a single Exchange call and
// discarded when the run reaches a terminal state.
type runContext struct {
	threadID string
	runID    string
}

// Interpreter applies one exchange's events, in arrival order, to the
// transcript. A requires-action event pauses consumption, resolves the batch
// through the tool handler, and resumes on the continuation stream.
type Interpreter struct {
	backend Backend
	tools   ToolHandler
	tr      *transcript.Transcript
}

// NewInterpreter creates an interpreter bound to a transcript.
func NewInterpreter(backend Backend, tr *transcript.Transcript, tools ToolHandler) *Interpreter {
	return &Interpreter{backend: backend, tools: tools, tr: tr}
}

// Exchange submits user content and consumes the resulting event stream to
// its terminal state. It returns a *RunError when the run fails, or the
// transport error when the stream breaks; partial transcript content is
// never rolled back.
func (in *Interpreter) Exchange(ctx context.Context, threadID, content string) error {
	events, err := in.backend.StreamMessage(ctx, threadID, content)
	if err != nil {
		return err
	}
	rc := &runContext{threadID: threadID}
	defer in.tr.CloseDeltas()
	return in.consume(ctx, rc, events)
}

func (in *Interpreter) consume(ctx context.Context, rc *runContext, events iter.Seq2[Event, error]) error {
	for ev, err := range events {
		if err != nil {
			return err
		}

		switch ev := ev.(type) {
		case TextCreated:
			in.tr.Append(transcript.RoleAssistant, "")
		case TextDelta:
			in.tr.AppendDelta(transcript.RoleAssistant, ev.Value)
			if len(ev.Annotations) > 0 {
				in.tr.RewriteLast(ev.Annotations)
			}
		case ImageReference:
			in.tr.AppendDelta(transcript.RoleAssistant,
				fmt.Sprintf("\n![%s](/files/%s)\n", ev.FileID, ev.FileID))
		case ToolCallCreated:
			if ev.Kind == KindCodeExecution {
				in.tr.Append(transcript.RoleCode, "")
			}
		case ToolCallDelta:
			if ev.Kind == KindCodeExecution {
				in.tr.AppendDelta(transcript.RoleCode, ev.Fragment)
			}
		case RunRequiresAction:
			rc.runID = ev.RunID
			outputs := in.resolve(ctx, ev.Calls)
			next, err := in.backend.SubmitToolOutputs(ctx, rc.threadID, rc.runID, outputs)
			if err != nil {
				return err
			}
			return in.consume(ctx, rc, next)
		case RunCompleted:
			return nil
		case RunFailed:
			return &RunError{Reason: ev.Reason}
		}
	}
	// Stream ended without a terminal event; the backend closes streams
	// after run.completed, so treat a clean EOF as completion.
	return nil
}

// resolve invokes the handler for every call in the batch. Calls resolve
// concurrently relative to each other; the exchange's own stream stays
// paused until all outputs exist. A handler failure becomes an error-string
// output so the batch still submits one output per call id.
func (in *Interpreter) resolve(ctx context.Context, calls []ToolCall) []ToolOutput {
	outputs := make([]ToolOutput, len(calls))
	g, ctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			out, err := in.handleCall(ctx, call)
			if err != nil {
				slog.Warn("tool handler failed", "tool_call_id", call.ID, "kind", call.Kind, "error", err)
				out = "error: " + err.Error()
			}
			outputs[i] = ToolOutput{ToolCallID: call.ID, Output: out}
			return nil
		})
	}
	_ = g.Wait()
	return outputs
}

// handleCall shields the batch from a misbehaving externally supplied
// handler: a panic is reported as that call's error output.
func (in *Interpreter) handleCall(ctx context.Context, call ToolCall) (out string, err error) {
	if in.tools == nil {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panic: %v", r)
		}
	}()
	return in.tools(ctx, call)
}
