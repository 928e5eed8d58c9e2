package transcript

import "testing"

func TestRewriteReplacesAllOccurrences(t *testing.T) {
	t.Parallel()

	text := "see sandbox:/chart.png and again sandbox:/chart.png"
	got := Rewrite(text, []Annotation{{MatchText: "sandbox:/chart.png", TargetFileID: "file-1"}})

	want := "see /files/file-1 and again /files/file-1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	t.Parallel()

	anns := []Annotation{
		{MatchText: "sandbox:/a.csv", TargetFileID: "file-a"},
		{MatchText: "sandbox:/b.csv", TargetFileID: "file-b"},
	}
	text := "download sandbox:/a.csv or sandbox:/b.csv"

	once := Rewrite(text, anns)
	twice := Rewrite(once, anns)
	if once != twice {
		t.Fatalf("rewrite not idempotent: %q vs %q", once, twice)
	}
}

func TestRewriteLastOnlyTouchesLastMessage(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Append(RoleAssistant, "ref sandbox:/x")
	tr.Append(RoleAssistant, "ref sandbox:/x")
	tr.RewriteLast([]Annotation{{MatchText: "sandbox:/x", TargetFileID: "file-x"}})

	msgs := tr.Messages()
	if msgs[0].Text != "ref sandbox:/x" {
		t.Errorf("earlier message must not be rewritten: %q", msgs[0].Text)
	}
	if msgs[1].Text != "ref /files/file-x" {
		t.Errorf("last message not rewritten: %q", msgs[1].Text)
	}
}

func TestRewriteLastOnEmptyTranscript(t *testing.T) {
	t.Parallel()

	tr := New()
	// Must not panic.
	tr.RewriteLast([]Annotation{{MatchText: "x", TargetFileID: "f"}})
	if tr.Len() != 0 {
		t.Fatal("rewrite must not append")
	}
}
