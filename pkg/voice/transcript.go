// Package voice holds the domain types shared by the live session engine
// and the post-session finalization pipeline.
package voice

import "strings"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one complete utterance attributed to a single role. Immutable
// once emitted; transcript order is conversational chronology.
type Turn struct {
	Role string
	Text string
}

// Aggregator buffers incremental user-speech fragments and emits
// finalized turns. The upstream service finalizes a user transcription
// before or alongside completing its own response, so a user turn is
// materialized only at the assistant's completion signal: the pair lands
// in the transcript as adjacent entries even when fragment delivery is
// interleaved with other events.
type Aggregator struct {
	fragments []string
	turns     []Turn
}

// AppendUserFragment buffers one transcription fragment. No emission.
func (a *Aggregator) AppendUserFragment(text string) {
	a.fragments = append(a.fragments, text)
}

// PendingText returns the buffered fragments joined by a single space,
// the same join OnAssistantTurnComplete will use. Used for incremental
// moderation before the turn boundary.
func (a *Aggregator) PendingText() string {
	return strings.Join(a.fragments, " ")
}

// OnAssistantTurnComplete emits the buffered user turn (if any) followed
// by the assistant turn, then clears the fragment buffer.
func (a *Aggregator) OnAssistantTurnComplete(text string) {
	if len(a.fragments) > 0 {
		a.turns = append(a.turns, Turn{Role: RoleUser, Text: strings.Join(a.fragments, " ")})
		a.fragments = a.fragments[:0]
	}
	a.turns = append(a.turns, Turn{Role: RoleAssistant, Text: text})
}

// Transcript returns the finalized turns in emission order. A trailing
// unflushed fragment buffer is deliberately excluded: unterminated turns
// are unreliable and are dropped rather than guessed.
func (a *Aggregator) Transcript() []Turn {
	out := make([]Turn, len(a.turns))
	copy(out, a.turns)
	return out
}
