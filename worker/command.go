package worker

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-gpib/gpib"
)

// Kind identifies what a command asks the worker to do.
type Kind int

const (
	// KindSetupSession (re)opens the bus session without talking to the device.
	KindSetupSession Kind = iota
	// KindShutdown closes the session and halts the worker.
	KindShutdown
	// KindAbort interrupts a running transfer by being queued. When it is processed
	// itself it only reports the abort.
	KindAbort
	// KindRetrieveSetupAndCal reads the learn string and calibration arrays.
	KindRetrieveSetupAndCal
	// KindSendSetupAndCal restores a saved setup and calibration.
	KindSendSetupAndCal
	// KindRetrieveTrace reads the trace and marker data of the active channels.
	KindRetrieveTrace
	// KindMeasureS2P measures and exports two-port S-parameters.
	KindMeasureS2P
	// KindAnalyzeLearnString discovers the learn string layout of the firmware.
	KindAnalyzeLearnString
	// KindSendCalKit transfers a calibration kit definition.
	KindSendCalKit
	// KindUtility runs a diagnostic body.
	KindUtility

	numKinds
)

var kindNames = [numKinds]string{
	KindSetupSession:        "setup-session",
	KindShutdown:            "shutdown",
	KindAbort:               "abort",
	KindRetrieveSetupAndCal: "retrieve-setup-and-cal",
	KindSendSetupAndCal:     "send-setup-and-cal",
	KindRetrieveTrace:       "retrieve-trace",
	KindMeasureS2P:          "measure-s2p",
	KindAnalyzeLearnString:  "analyze-learn-string",
	KindSendCalKit:          "send-cal-kit",
	KindUtility:             "utility",
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// builtin reports whether k is handled by the dispatcher itself.
func (k Kind) builtin() bool {
	return k == KindSetupSession || k == KindShutdown || k == KindAbort
}

// ParseKind returns the kind named s, e.g. "retrieve-trace". Matching ignores case.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}

	return kinds
}

// Command is one unit of work for the worker. It is consumed exactly once.
type Command struct {
	Kind Kind
	// Payload is handed unchanged to the route body.
	Payload any
	// Token is opaque to the worker. When it implements Completer it receives the
	// command result.
	Token any
}

// Result describes how a command ended.
type Result struct {
	Kind Kind
	// Outcome is the aggregated outcome of every transfer of the command.
	Outcome gpib.Outcome
	// Status is the session status after housekeeping.
	Status gpib.Status
	// Err is nil when the command succeeded.
	Err error
	// Skipped reports that the command body did not run.
	Skipped bool
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Completer receives the result of the command it was attached to as Token.
// Complete is called on the worker goroutine and must not block.
type Completer interface {
	Complete(Result)
}

// CompletionChan is a Completer delivering the result on a buffered channel.
type CompletionChan chan Result

// NewCompletionChan creates a CompletionChan able to hold one result.
func NewCompletionChan() CompletionChan {
	return make(CompletionChan, 1)
}

// Complete delivers r unless the channel is full.
func (c CompletionChan) Complete(r Result) {
	select {
	case c <- r:
	default:
	}
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(Result)

func (f CompleterFunc) Complete(r Result) {
	f(r)
}
