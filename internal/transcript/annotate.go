package transcript

import "strings"

// Annotation is an in-text citation marker emitted by the backend. Every
// literal occurrence of MatchText is rewritten to the retrievable path of
// TargetFileID. Annotations are consumed immediately and not retained.
type Annotation struct {
	MatchText    string `json:"text"`
	TargetFileID string `json:"file_id"`
}

// FilePath returns the stable reference path for an annotated file.
func (a Annotation) FilePath() string {
	return "/files/" + a.TargetFileID
}

// Rewrite replaces every occurrence of each annotation's match text with its
// file path. Reapplying the same annotations is a no-op: the rewritten form
// no longer contains the match text.
func Rewrite(text string, annotations []Annotation) string {
	for _, a := range annotations {
		if a.MatchText == "" {
			continue
		}
		text = strings.ReplaceAll(text, a.MatchText, a.FilePath())
	}
	return text
}

// RewriteLast applies annotations to the last message only. A transcript
// without messages ignores the call.
func (t *Transcript) RewriteLast(annotations []Annotation) {
	if len(t.messages) == 0 || len(annotations) == 0 {
		return
	}
	idx := len(t.messages) - 1
	rewritten := Rewrite(t.messages[idx].Text, annotations)
	if rewritten == t.messages[idx].Text {
		return
	}
	t.messages[idx].Text = rewritten
	t.notify(Change{Kind: ChangeRewrite, Index: idx, Message: t.messages[idx]})
}
