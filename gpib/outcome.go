package gpib

// Outcome is the result of an asynchronous transfer.
type Outcome int

const (
	// Continue is the in-flight state of the poll loop. It is never returned.
	Continue Outcome = iota
	// OK means the transfer completed or the talker signalled end of data.
	OK
	// Error means the driver reported an error.
	Error
	// Timeout means the overall time budget was spent without completion.
	Timeout
	// Abort means the abort checker reported a pending abort.
	Abort
	// PreviousError means the session already held a failed status; the bus was not touched.
	PreviousError
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "Continue"
	case OK:
		return "OK"
	case Error:
		return "Error"
	case Timeout:
		return "Timeout"
	case Abort:
		return "Abort"
	case PreviousError:
		return "PreviousError"
	default:
		return "Unknown"
	}
}

// IsOK reports whether o is OK.
func (o Outcome) IsOK() bool {
	return o == OK
}

// Err maps the outcome to one of the package sentinel errors, or nil for OK.
func (o Outcome) Err() error {
	switch o {
	case OK:
		return nil
	case Error:
		return ErrDriver
	case Timeout:
		return ErrTimeout
	case Abort:
		return ErrAborted
	case PreviousError:
		return ErrPreviousError
	default:
		return ErrDriver
	}
}

// Worst returns the more severe of two outcomes. It is used to aggregate the
// outcomes of the several transfers of one command.
func Worst(a, b Outcome) Outcome {
	rank := func(o Outcome) int {
		switch o {
		case OK, Continue:
			return 0
		case Abort:
			return 1
		case Timeout:
			return 2
		case PreviousError:
			return 3
		default:
			return 4
		}
	}
	if rank(b) > rank(a) {
		return b
	}

	return a
}
