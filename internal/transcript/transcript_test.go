package transcript

import (
	"strings"
	"testing"
)

func TestAppendDeltaConcatenatesInArrivalOrder(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Append(RoleAssistant, "")

	fragments := []string{"Hel", "lo", ", ", "wor", "ld"}
	for _, f := range fragments {
		tr.AppendDelta(RoleAssistant, f)
	}

	last, ok := tr.Last()
	if !ok {
		t.Fatal("expected a message")
	}
	if want := strings.Join(fragments, ""); last.Text != want {
		t.Fatalf("expected %q, got %q", want, last.Text)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", tr.Len())
	}
}

func TestAppendDeltaSynthesizesPlaceholder(t *testing.T) {
	t.Parallel()

	tr := New()
	// A delta without a preceding created event must not be an error.
	tr.AppendDelta(RoleAssistant, "orphan")

	last, ok := tr.Last()
	if !ok {
		t.Fatal("expected a synthesized message")
	}
	if last.Role != RoleAssistant || last.Text != "orphan" {
		t.Fatalf("unexpected message: %+v", last)
	}
}

func TestAppendDeltaTargetsMatchingRole(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Append(RoleAssistant, "answer")
	tr.Append(RoleCode, "")
	tr.AppendDelta(RoleCode, "print(1)")
	tr.AppendDelta(RoleAssistant, " continued")

	msgs := tr.Messages()
	if msgs[0].Text != "answer continued" {
		t.Errorf("assistant message not targeted: %q", msgs[0].Text)
	}
	if msgs[1].Text != "print(1)" {
		t.Errorf("code message not targeted: %q", msgs[1].Text)
	}
}

func TestCloseDeltasEndsDeltaApplication(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Append(RoleAssistant, "first")
	tr.CloseDeltas()
	tr.AppendDelta(RoleAssistant, "second")

	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected a fresh placeholder after close, got %d messages", len(msgs))
	}
	if msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestOnChangeReportsMutations(t *testing.T) {
	t.Parallel()

	tr := New()
	var changes []Change
	tr.SetOnChange(func(c Change) { changes = append(changes, c) })

	tr.Append(RoleAssistant, "")
	tr.AppendDelta(RoleAssistant, "hi")

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Kind != ChangeAppend || changes[1].Kind != ChangeGrow {
		t.Fatalf("unexpected change kinds: %+v", changes)
	}
	if changes[1].Delta != "hi" {
		t.Fatalf("expected delta %q, got %q", "hi", changes[1].Delta)
	}
}

func TestSensitiveMessagesKeepFlag(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.AppendSensitive(RoleUser, "password1")

	last, _ := tr.Last()
	if !last.Sensitive {
		t.Fatal("expected sensitive flag")
	}
}
