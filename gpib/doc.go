// Package gpib implements the bus layer of go-gpib: a session to one addressed
// instrument on an IEEE-488 (GPIB) bus and the asynchronous transfer state machine
// that emulates blocking reads and writes over a driver that only offers
// "start operation" and "wait for status".
//
// # Bus
//
// [Bus] is the driver boundary. Its methods mirror the primitives of the
// linux-gpib library (ibdev, ibfind, ibwrta, ibrda, ibwait, ibstop, ibclr, ibloc,
// ibln, ibtmo). Every call returns a [Status], the decoded status word, built once
// at the boundary so the rest of the package never handles raw bit masks.
// Implementations live outside this package, for example [prologix] for
// serial GPIB-USB controllers and [gpibtest] for scripted tests.
//
// # Session
//
// A [Session] owns one device handle. It is not safe for concurrent use: the
// intended owner is a single worker goroutine (see package worker), which removes
// the need for any bus-level lock.
//
// Session state includes the status of the last bus call. Once that status reports
// a failure, every further transfer returns [PreviousError] without touching the
// bus until [Session.ResetStatus] is called.
//
// # Asynchronous transfers
//
// [Session.AsyncWrite] and [Session.AsyncRead] start a transfer and poll it in
// 30ms slices. Elapsed time is accounted in fixed slice increments, so timeouts
// and "still waiting" notices depend on the number of polls rather than on
// scheduler latency. An [AbortChecker] is consulted after every poll; when it
// reports a pending abort the transfer is stopped and [Abort] is returned.
//
// The bus timeout is a borrowed resource: every operation that changes it restores
// the previous value on all exit paths.
//
// [prologix]: github.com/arloliu/go-gpib/gpib/prologix
// [gpibtest]: github.com/arloliu/go-gpib/gpib/gpibtest
package gpib
