package gpib

import (
	"fmt"
	"strings"
)

// Status word bits as reported by linux-gpib (ibsta).
const (
	bitCMPL uint16 = 0x0100
	bitEND  uint16 = 0x2000
	bitTIMO uint16 = 0x4000
	bitERR  uint16 = 0x8000
)

// Status is the decoded result of a bus call.
type Status struct {
	// Errored is set when the driver reported an error (ERR). Err holds the code.
	Errored bool
	// TimedOut is set when the call's timeout expired (TIMO).
	TimedOut bool
	// EndOfData is set when the talker asserted EOI or sent the EOS byte (END).
	EndOfData bool
	// Completed is set when the I/O operation finished (CMPL).
	Completed bool

	// Err is the driver error code, meaningful only when Errored is set.
	Err ErrorCode
	// Count is the number of bytes transferred by the operation.
	Count int
}

// StatusFromBits decodes a raw status word, error code and byte count.
// Drivers that expose linux-gpib style globals construct their Status here.
func StatusFromBits(ibsta uint16, iberr int, ibcnt int) Status {
	return Status{
		Errored:   ibsta&bitERR != 0,
		TimedOut:  ibsta&bitTIMO != 0,
		EndOfData: ibsta&bitEND != 0,
		Completed: ibsta&bitCMPL != 0,
		Err:       ErrorCode(iberr),
		Count:     ibcnt,
	}
}

// Bits encodes the status back into an ibsta style word, for logging.
func (s Status) Bits() uint16 {
	var w uint16
	if s.Errored {
		w |= bitERR
	}
	if s.TimedOut {
		w |= bitTIMO
	}
	if s.EndOfData {
		w |= bitEND
	}
	if s.Completed {
		w |= bitCMPL
	}

	return w
}

// Failed reports whether the status represents an error or a timeout.
func (s Status) Failed() bool {
	return s.Errored || s.TimedOut
}

// OK reports whether the status does not represent a failure.
func (s Status) OK() bool {
	return !s.Failed()
}

func (s Status) String() string {
	var flags []string
	if s.Errored {
		flags = append(flags, "ERR")
	}
	if s.TimedOut {
		flags = append(flags, "TIMO")
	}
	if s.EndOfData {
		flags = append(flags, "END")
	}
	if s.Completed {
		flags = append(flags, "CMPL")
	}
	if len(flags) == 0 {
		flags = append(flags, "-")
	}

	str := fmt.Sprintf("%04X[%s] count=%d", s.Bits(), strings.Join(flags, "|"), s.Count)
	if s.Errored {
		str += " err=" + s.Err.String()
	}

	return str
}

// Failure returns a Status carrying only an error code.
func Failure(code ErrorCode) Status {
	return Status{Errored: true, Err: code}
}

// ErrorCode is a driver error number (iberr).
type ErrorCode int

// linux-gpib error codes.
const (
	EDVR ErrorCode = 0  // system error
	ECIC ErrorCode = 1  // not controller-in-charge
	ENOL ErrorCode = 2  // no listeners
	EADR ErrorCode = 3  // improper addressing
	EARG ErrorCode = 4  // bad argument
	ESAC ErrorCode = 5  // not system controller
	EABO ErrorCode = 6  // operation aborted
	ENEB ErrorCode = 7  // non-existent board
	EDMA ErrorCode = 8  // DMA error
	EOIP ErrorCode = 10 // async I/O in progress
	ECAP ErrorCode = 11 // no capability
	EFSO ErrorCode = 12 // file system error
	EBUS ErrorCode = 14 // bus error
	ESTB ErrorCode = 15 // serial poll queue overflow
	ESRQ ErrorCode = 16 // SRQ stuck on
	ETAB ErrorCode = 20 // table problem
)

var errorCodeNames = map[ErrorCode]string{
	EDVR: "EDVR",
	ECIC: "ECIC",
	ENOL: "ENOL",
	EADR: "EADR",
	EARG: "EARG",
	ESAC: "ESAC",
	EABO: "EABO",
	ENEB: "ENEB",
	EDMA: "EDMA",
	EOIP: "EOIP",
	ECAP: "ECAP",
	EFSO: "EFSO",
	EBUS: "EBUS",
	ESTB: "ESTB",
	ESRQ: "ESRQ",
	ETAB: "ETAB",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("E%d", int(c))
}

// WaitMask selects the conditions Bus.Wait returns on.
type WaitMask uint16

const (
	WaitTimeout  WaitMask = WaitMask(bitTIMO)
	WaitComplete WaitMask = WaitMask(bitCMPL)
	WaitEnd      WaitMask = WaitMask(bitEND)
)

// Has reports whether every bit of flag is set in m.
func (m WaitMask) Has(flag WaitMask) bool {
	return m&flag == flag
}
