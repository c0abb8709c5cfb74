// Package transcript collects streaming transcription fragments for one
// active session and releases them as whole utterances at turn boundaries.
package transcript

import "strings"

// Accumulator holds two growable text buffers: one for what the user said
// (input transcription) and one for what the model said (output
// transcription). Deltas are appended verbatim in delivery order; text is
// trimmed only when a buffer is flushed.
//
// Not safe for concurrent use. The owning pipeline serializes all access.
type Accumulator struct {
	input  strings.Builder
	output strings.Builder
}

func New() *Accumulator {
	return &Accumulator{}
}

// AddInput appends one user-speech fragment.
func (a *Accumulator) AddInput(delta string) {
	a.input.WriteString(delta)
}

// AddOutput appends one model-speech fragment.
func (a *Accumulator) AddOutput(delta string) {
	a.output.WriteString(delta)
}

// FlushInput returns the accumulated user text with surrounding whitespace
// trimmed and clears the buffer. ok is false when the accumulation was empty
// or whitespace-only; the buffer is cleared either way.
func (a *Accumulator) FlushInput() (text string, ok bool) {
	return flush(&a.input)
}

// FlushOutput returns the accumulated model text with surrounding whitespace
// trimmed and clears the buffer. ok is false when the accumulation was empty
// or whitespace-only; the buffer is cleared either way.
func (a *Accumulator) FlushOutput() (text string, ok bool) {
	return flush(&a.output)
}

// OutputPending reports whether the model buffer holds any non-whitespace
// text, without clearing it.
func (a *Accumulator) OutputPending() bool {
	return strings.TrimSpace(a.output.String()) != ""
}

// Reset clears both buffers. Called once at session open so a new session
// never inherits fragments from a previous one.
func (a *Accumulator) Reset() {
	a.input.Reset()
	a.output.Reset()
}

func flush(b *strings.Builder) (string, bool) {
	text := strings.TrimSpace(b.String())
	b.Reset()
	return text, text != ""
}
