// Package transcript contains the ordered conversation transcript and its
// mutation rules. Messages are append-only: once appended, a message is never
// removed, and only the open message of a role may grow through delta
// application until the exchange's terminal event closes it.
package transcript

// Role identifies the producer of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleCode      Role = "code"
	RoleSystem    Role = "system"
)

// Message is a single transcript entry. Sensitive marks content that must be
// rendered masked (for example a captured secret echoed back).
type Message struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// ChangeKind describes what a transcript mutation did.
type ChangeKind int

const (
	// ChangeAppend means a new message was appended.
	ChangeAppend ChangeKind = iota
	// ChangeGrow means text was appended to an open message.
	ChangeGrow
	// ChangeRewrite means the last message's text was rewritten in place.
	ChangeRewrite
)

// Change is delivered to the observer after each mutation. Delta carries the
// appended fragment for ChangeGrow and is empty otherwise.
type Change struct {
	Kind    ChangeKind
	Index   int
	Delta   string
	Message Message
}

// Transcript is the ordered message sequence for one conversation session.
// It is not safe for concurrent use; all mutation happens on the single
// event-processing path of the session.
type Transcript struct {
	messages []Message
	// open tracks, per role, the index of the message currently accepting
	// deltas. Tracking indexes explicitly avoids re-deriving "last" by
	// position when messages of several roles interleave.
	open     map[Role]int
	onChange func(Change)
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{open: make(map[Role]int)}
}

// SetOnChange registers a callback invoked after every mutation. Pass nil to
// remove it.
func (t *Transcript) SetOnChange(fn func(Change)) {
	t.onChange = fn
}

// Append adds a message and makes it the open message for its role.
func (t *Transcript) Append(role Role, text string) int {
	return t.append(Message{Role: role, Text: text})
}

// AppendSensitive adds a message whose text must be rendered masked.
func (t *Transcript) AppendSensitive(role Role, text string) int {
	return t.append(Message{Role: role, Text: text, Sensitive: true})
}

func (t *Transcript) append(m Message) int {
	t.messages = append(t.messages, m)
	idx := len(t.messages) - 1
	t.open[m.Role] = idx
	t.notify(Change{Kind: ChangeAppend, Index: idx, Message: m})
	return idx
}

// AppendDelta appends text to the open message of the given role. If no open
// message exists — a backend may emit a delta without the matching created
// event — an empty placeholder is synthesized first.
func (t *Transcript) AppendDelta(role Role, text string) {
	idx, ok := t.open[role]
	if !ok {
		idx = t.Append(role, "")
	}
	t.messages[idx].Text += text
	t.notify(Change{Kind: ChangeGrow, Index: idx, Delta: text, Message: t.messages[idx]})
}

// CloseDeltas closes all open messages. Called when a run reaches a terminal
// state; subsequent deltas will synthesize fresh placeholders.
func (t *Transcript) CloseDeltas() {
	clear(t.open)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the message sequence in display order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Last returns the most recent message, or false when the transcript is empty.
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

func (t *Transcript) notify(c Change) {
	if t.onChange != nil {
		t.onChange(c)
	}
}
