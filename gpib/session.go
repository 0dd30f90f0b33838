package gpib

import (
	"fmt"
	"time"

	"github.com/arloliu/go-gpib/logger"
)

// PingTimeout is the board timeout used while probing the device as a listener.
const PingTimeout = T1s

// Session is an open connection to one addressed device.
//
// A Session is owned by a single goroutine and is not safe for concurrent use.
type Session struct {
	bus      Bus
	cfg      *DeviceConfig
	logger   logger.Logger
	notifier Notifier

	handle    Handle
	status    Status
	lastLocal time.Time

	metrics SessionMetrics
}

// NewSession creates a closed session. Call Open to obtain a device handle.
func NewSession(bus Bus, cfg *DeviceConfig) *Session {
	s := &Session{
		bus:      bus,
		cfg:      cfg,
		logger:   logger.GetLogger(),
		notifier: nopNotifier{},
		handle:   InvalidHandle,
	}
	if cfg != nil && cfg.logger != nil {
		s.logger = cfg.logger
	}

	return s
}

// OpenSession creates a session and opens the device.
//
// It fails with ErrConfig when the addressing parameters are invalid, ErrNotFound
// when the device descriptor cannot be obtained and ErrUnresponsive when the
// device does not answer the liveness check.
func OpenSession(bus Bus, cfg *DeviceConfig) (*Session, error) {
	s := NewSession(bus, cfg)
	if err := s.Open(); err != nil {
		return nil, err
	}

	return s, nil
}

// SetNotifier sets the receiver of progress messages. A nil notifier disables them.
func (s *Session) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Open (re)opens the device. A handle left from an earlier open is released first.
func (s *Session) Open() error {
	if err := s.cfg.Validate(); err != nil {
		s.metrics.OpenErrCount.Add(1)
		return err
	}
	if s.bus == nil {
		s.metrics.OpenErrCount.Add(1)
		return fmt.Errorf("%w: bus is nil", ErrConfig)
	}

	_ = s.Close()
	s.status = Status{}

	h, err := s.openHandle()
	if err != nil {
		s.metrics.OpenErrCount.Add(1)
		s.logger.Error("gpib: cannot obtain device descriptor", "addressing", s.cfg.Addressing(), "error", err)

		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	s.handle = h

	if !s.Ping() {
		s.metrics.OpenErrCount.Add(1)
		s.logger.Error("gpib: device does not answer", "handle", h)
		_ = s.Close()

		return ErrUnresponsive
	}

	s.metrics.OpenCount.Add(1)
	s.logger.Info("gpib: contact with device established", "handle", h, "addressing", s.cfg.Addressing())
	s.notifier.PostInfo("Contact with device established")
	s.GoToLocal()

	return nil
}

func (s *Session) openHandle() (Handle, error) {
	if s.cfg.useExplicitAddressing {
		return s.bus.Dev(s.cfg.controllerIndex, s.cfg.primaryAddress, s.cfg.secondaryAddress,
			s.cfg.openTimeout, AssertEOI, NoEOS)
	}

	h, err := s.bus.Find(s.cfg.deviceName)
	if err != nil {
		return InvalidHandle, err
	}
	if st := s.bus.SetEOT(h, AssertEOI); st.Errored {
		s.logger.Warn("gpib: cannot enable EOI", "handle", h, "status", st)
	}

	return h, nil
}

// Ping checks the device by addressing it as a listener.
//
// The board timeout is set to PingTimeout for the check and restored afterward
// on every path. Ping does not change the session status.
func (s *Session) Ping() bool {
	found := s.ping()
	if !found {
		s.metrics.PingFailCount.Add(1)
	}

	return found
}

func (s *Session) ping() bool {
	if !s.handle.Valid() {
		return false
	}

	pad, st := s.bus.AskPAD(s.handle)
	if st.Errored {
		s.logger.Debug("gpib: ping cannot read primary address", "status", st)
		return false
	}
	boardIndex, st := s.bus.AskBoard(s.handle)
	if st.Errored {
		s.logger.Debug("gpib: ping cannot read board index", "status", st)
		return false
	}
	board := BoardHandle(boardIndex)

	restore, st := s.borrowTimeout(board, PingTimeout)
	if st.Errored {
		s.logger.Debug("gpib: ping cannot set board timeout", "status", st)
		return false
	}
	defer restore()

	found, st := s.bus.Listener(board, pad, s.cfg.secondaryAddress)
	if st.Errored {
		s.logger.Debug("gpib: ping listener check failed", "status", st)
		return false
	}

	return found
}

// Close releases the device handle. Closing a closed session is a no-op.
func (s *Session) Close() error {
	if !s.handle.Valid() {
		return nil
	}

	h := s.handle
	s.handle = InvalidHandle
	if st := s.bus.Offline(h); st.Errored {
		s.logger.Warn("gpib: release device descriptor failed", "handle", h, "status", st)
		return fmt.Errorf("gpib: offline handle %d: %w (%s)", h, ErrDriver, st)
	}
	s.logger.Debug("gpib: device descriptor released", "handle", h)

	return nil
}

// GoToLocal returns the device to local control and waits the local settle delay.
// It returns the time the command was issued together with its status.
func (s *Session) GoToLocal() (time.Time, Status) {
	if !s.handle.Valid() {
		return time.Time{}, Failure(EDVR)
	}

	st := s.bus.Local(s.handle)
	s.lastLocal = time.Now()
	if st.Errored {
		s.logger.Warn("gpib: go to local failed", "status", st)
	}
	time.Sleep(s.cfg.localSettleDelay)

	return s.lastLocal, st
}

// LastLocal returns when the device was last returned to local control.
func (s *Session) LastLocal() time.Time {
	return s.lastLocal
}

// Clear sends a device clear, records its status and waits the clear settle delay.
func (s *Session) Clear() Status {
	if !s.handle.Valid() {
		return Failure(EDVR)
	}

	st := s.bus.Clear(s.handle)
	s.status = st
	s.metrics.ClearCount.Add(1)
	s.logger.Debug("gpib: device clear", "status", st)
	time.Sleep(s.cfg.clearSettleDelay)

	return st
}

// BorrowTimeout sets the device timeout to t and returns a function restoring the
// previous value. The restore function must be called on every exit path, usually
// with defer. When the current timeout cannot be read nothing is changed and the
// returned function does nothing.
func (s *Session) BorrowTimeout(t TimeoutSetting) func() {
	if !s.handle.Valid() {
		return func() {}
	}
	restore, st := s.borrowTimeout(s.handle, t)
	if st.Errored {
		s.logger.Warn("gpib: cannot change timeout", "timeout", t, "status", st)
	}

	return restore
}

func (s *Session) borrowTimeout(h Handle, t TimeoutSetting) (func(), Status) {
	prev, st := s.bus.AskTimeout(h)
	if st.Errored {
		return func() {}, st
	}
	if st = s.bus.SetTimeout(h, t); st.Errored {
		return func() {}, st
	}

	return func() {
		if st := s.bus.SetTimeout(h, prev); st.Errored {
			s.logger.Warn("gpib: cannot restore timeout", "handle", h, "timeout", prev, "status", st)
		}
	}, st
}

// AskTimeout returns the current device timeout.
func (s *Session) AskTimeout() (TimeoutSetting, error) {
	if !s.handle.Valid() {
		return TNONE, ErrSessionClosed
	}
	t, st := s.bus.AskTimeout(s.handle)
	if st.Errored {
		return TNONE, fmt.Errorf("gpib: ask timeout: %w (%s)", ErrDriver, st)
	}

	return t, nil
}

// Write sends data with a blocking write and returns the number of bytes written.
func (s *Session) Write(data []byte) (int, error) {
	if err := s.precheck(); err != nil {
		return 0, err
	}

	s.logger.Debug("gpib: write", "bytes", len(data))
	st := s.bus.Write(s.handle, data)
	s.status = st
	s.metrics.countTransfer(dirWrite, st.Count)
	if st.Failed() {
		s.logger.Error("gpib: write failed", "status", st)
		return st.Count, fmt.Errorf("gpib: write: %w (%s)", ErrDriver, st)
	}

	return st.Count, nil
}

// Read fills buf with a blocking read and returns the number of bytes read.
func (s *Session) Read(buf []byte) (int, error) {
	if err := s.precheck(); err != nil {
		return 0, err
	}

	st := s.bus.Read(s.handle, buf)
	s.status = st
	s.metrics.countTransfer(dirRead, st.Count)
	s.logger.Debug("gpib: read", "bytes", st.Count, "max", len(buf))
	if st.Failed() {
		s.logger.Error("gpib: read failed", "status", st)
		return st.Count, fmt.Errorf("gpib: read: %w (%s)", ErrDriver, st)
	}

	return st.Count, nil
}

func (s *Session) precheck() error {
	if s.status.Failed() {
		return ErrPreviousError
	}
	if !s.handle.Valid() {
		return ErrSessionClosed
	}

	return nil
}

// Handle returns the device handle, InvalidHandle when closed.
func (s *Session) Handle() Handle {
	return s.handle
}

// Valid reports whether the session holds an open device handle.
func (s *Session) Valid() bool {
	return s.handle.Valid()
}

// Status returns the status of the last bus call.
func (s *Session) Status() Status {
	return s.status
}

// Failed reports whether the last bus call failed. While it does, transfers
// return PreviousError.
func (s *Session) Failed() bool {
	return s.status.Failed()
}

// ResetStatus clears the recorded status so that the bus may be used again.
func (s *Session) ResetStatus() {
	s.status = Status{}
}

// Config returns the device configuration.
func (s *Session) Config() *DeviceConfig {
	return s.cfg
}

// Metrics returns the session metrics.
func (s *Session) Metrics() *SessionMetrics {
	return &s.metrics
}
