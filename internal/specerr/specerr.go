// Package specerr defines the single error taxonomy used across specpipe.
// Library code never exits the process; callers (cmd/specpipe) map a Kind
// to an exit code and a user-facing message.
package specerr

import "fmt"

// Kind is a closed enumeration of error categories. Adding a Kind requires
// updating the exit-code table in cmd/specpipe.
type Kind string

const (
	KindConfig          Kind = "config"
	KindLock            Kind = "lock"
	KindSandbox         Kind = "sandbox"
	KindIO              Kind = "io"
	KindSecret          Kind = "secret"
	KindPacketOverflow  Kind = "packet_overflow"
	KindCanonicalization Kind = "canonicalization"
	KindBackend         Kind = "backend"
	KindParse           Kind = "parse"
	KindFixup           Kind = "fixup"
	KindTimeout         Kind = "timeout"
	KindCancelled       Kind = "cancelled"
	KindBudgetExceeded  Kind = "budget_exceeded"
	KindModelResolution Kind = "model_resolution"
)

// Error is the typed error carried through the core. Context is a short
// human-readable description of what was being attempted; Suggestion is an
// actionable next step. Cause may be nil.
type Error struct {
	Kind       Kind
	Context    string
	Suggestion string
	Cause      error
}

func (e *Error) Error() string {
	if e.Suggestion == "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v (suggestion: %s)", e.Kind, e.Context, e.Cause, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s (suggestion: %s)", e.Kind, e.Context, e.Suggestion)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, specerr.New(kind, "", "")) style matching purely
// on Kind, as well as matching against a bare sentinel created with kindOnly.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// New builds an *Error with the given kind, context and suggestion.
func New(kind Kind, context, suggestion string) *Error {
	return &Error{Kind: kind, Context: context, Suggestion: suggestion}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, context, suggestion string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Suggestion: suggestion, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and
// reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// as is a tiny local errors.As to avoid importing errors just for this.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ExitCode maps a Kind to the process exit code fixed by the CLI contract.
// Cancellation (130) and success (0) are not represented by a Kind and are
// handled directly by callers.
func ExitCode(kind Kind) int {
	switch kind {
	case KindConfig:
		return 2
	case KindLock:
		return 9
	case KindSecret:
		return 10
	case KindPacketOverflow:
		return 11
	case KindCanonicalization:
		return 12
	case KindBackend, KindModelResolution:
		return 20
	case KindParse:
		return 21
	case KindFixup:
		return 30
	case KindBudgetExceeded:
		return 70
	case KindCancelled:
		return 130
	case KindSandbox, KindIO, KindTimeout:
		return 1
	default:
		return 1
	}
}
