package gpib

import "context"

// AbortChecker is a non-blocking cancellation source consulted once per poll slice.
type AbortChecker interface {
	// AbortPending reports whether the current transfer should be abandoned.
	AbortPending() bool
}

// AbortFunc adapts a predicate to AbortChecker.
type AbortFunc func() bool

func (f AbortFunc) AbortPending() bool {
	return f()
}

// NeverAbort never requests an abort.
var NeverAbort AbortChecker = AbortFunc(func() bool { return false })

// ContextAbort reports an abort once ctx is done.
func ContextAbort(ctx context.Context) AbortChecker {
	return AbortFunc(func() bool {
		return ctx.Err() != nil
	})
}

// AnyAbort reports an abort when any of the checkers does. Nil checkers are ignored.
func AnyAbort(checkers ...AbortChecker) AbortChecker {
	return AbortFunc(func() bool {
		for _, c := range checkers {
			if c != nil && c.AbortPending() {
				return true
			}
		}

		return false
	})
}
