// Package transcript reconciles streamed partial transcriptions into
// finalized conversation messages.
package transcript

import "strings"

// Accumulator collects partial input (user) and output (assistant) text for
// the turn in flight. It is not safe for concurrent use.
type Accumulator struct {
	input  strings.Builder
	output strings.Builder
}

// Turn holds the finalized text of one completed turn. Empty fields mean the
// channel produced nothing worth emitting.
type Turn struct {
	User      string
	Assistant string
}

// AppendInput concatenates a partial user transcription
func (a *Accumulator) AppendInput(text string) {
	a.input.WriteString(text)
}

// AppendOutput concatenates a partial assistant transcription
func (a *Accumulator) AppendOutput(text string) {
	a.output.WriteString(text)
}

// Complete finalizes the turn: both buffers are trimmed, returned and reset.
func (a *Accumulator) Complete() Turn {
	turn := Turn{
		User:      strings.TrimSpace(a.input.String()),
		Assistant: strings.TrimSpace(a.output.String()),
	}
	a.Reset()
	return turn
}

// Interrupt discards everything accumulated for the in-flight turn
func (a *Accumulator) Interrupt() {
	a.Reset()
}

// Reset clears both buffers
func (a *Accumulator) Reset() {
	a.input.Reset()
	a.output.Reset()
}

// Pending returns the raw accumulated text without finalizing
func (a *Accumulator) Pending() (input, output string) {
	return a.input.String(), a.output.String()
}
