package core

import (
	"errors"
	"fmt"
)

// Kind tags every error the gateway produces. Callers branch on the kind,
// never on message text.
type Kind string

const (
	// KindInvalidInput covers malformed queries, invalid pipeline configs
	// and query-validator rejections.
	KindInvalidInput Kind = "invalid_input"
	// KindUpstreamTransient covers 5xx, 429, timeouts and known
	// service-unavailable markers. Retried inside adapters.
	KindUpstreamTransient Kind = "upstream_transient"
	// KindUpstreamUnavailable is a permanent upstream failure after
	// retries are exhausted.
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	// KindUpstreamParse means the upstream returned a payload the adapter
	// could not decode.
	KindUpstreamParse Kind = "upstream_parse_error"
	// KindPipelineAborted is raised when a step with on_error=abort fails.
	KindPipelineAborted Kind = "pipeline_aborted"
	// KindInvariantBroken marks programming bugs (a cycle escaping
	// validation, duplicate ids escaping checks). Fatal to the request.
	KindInvariantBroken Kind = "core_invariant_broken"
)

// Error is the kind-tagged error type used across the core.
type Error struct {
	Kind    Kind
	Message string
	Step    string // Offending pipeline step id, when applicable
	Source  string // Offending upstream source id, when applicable
	Err     error  // Wrapped cause
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("step %q: %s", e.Step, msg)
	}
	if e.Source != "" {
		msg = fmt.Sprintf("%s: %s", e.Source, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on a bare kind probe, e.g.
// errors.Is(err, &Error{Kind: KindInvalidInput}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a kind-tagged error.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError wraps a cause with a kind tag.
func WrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the kind of err, or "" when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
