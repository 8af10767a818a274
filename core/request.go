package core

import (
	"maps"

	"github.com/google/uuid"
)

// Well-known request context keys.
const (
	ContextAccountID = "account_id"
)

// NewID returns a new random identifier for requests, runs and tool calls.
func NewID() string { return uuid.NewString() }

// Request is the user's input: text plus optional structured context such as
// an account identifier. A Request is immutable once created; accessors
// return copies.
type Request struct {
	id      string
	text    string
	context map[string]string
}

// NewRequest creates a Request. The context map is copied.
func NewRequest(text string, context map[string]string) Request {
	return Request{id: NewID(), text: text, context: maps.Clone(context)}
}

// ID returns the request identifier.
func (r Request) ID() string { return r.id }

// Text returns the user-supplied text.
func (r Request) Text() string { return r.text }

// Context returns a copy of the structured context.
func (r Request) Context() map[string]string {
	if r.context == nil {
		return map[string]string{}
	}
	return maps.Clone(r.context)
}

// Value returns a single context value.
func (r Request) Value(key string) (string, bool) {
	v, ok := r.context[key]
	return v, ok
}

// AccountID returns the account identifier from the context, if any.
func (r Request) AccountID() string { return r.context[ContextAccountID] }
