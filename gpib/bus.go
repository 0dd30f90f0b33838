package gpib

// Handle identifies an open descriptor on a Bus.
//
// Board descriptors are their board index (see BoardHandle); device descriptors
// returned by Find and Dev start at FirstDeviceHandle.
type Handle int

const (
	// InvalidHandle marks a session without an open device.
	InvalidHandle Handle = -1
	// FirstDeviceHandle is the lowest handle a Bus may return for a device.
	FirstDeviceHandle Handle = 16
	// MaxBoardIndex is the highest controller (board) index.
	MaxBoardIndex = 15
)

// BoardHandle returns the descriptor of the controller with the given index.
func BoardHandle(index int) Handle {
	return Handle(index)
}

// Valid reports whether h refers to a device descriptor.
func (h Handle) Valid() bool {
	return h >= FirstDeviceHandle
}

// Addressing limits.
const (
	MaxPrimaryAddress   = 30
	NoSecondaryAddress  = 0
	MinSecondaryAddress = 0x60
	MaxSecondaryAddress = 0x7e
)

// Framing constants used when opening a device: EOI is asserted with the last byte
// of every write and no end-of-string character terminates reads.
const (
	AssertEOI = true
	NoEOS     = 0
)

// Bus is the driver boundary of the package.
//
// Implementations translate each call into one driver primitive and return the
// decoded status of that call. None of the methods may block longer than the
// handle's current timeout, except Wait with TNONE.
type Bus interface {
	// Find opens a device by its configured symbolic name (ibfind).
	Find(name string) (Handle, error)
	// Dev opens a device by board index and addresses (ibdev).
	Dev(board, pad, sad int, tmo TimeoutSetting, eot bool, eos int) (Handle, error)
	// Offline releases a device descriptor (ibonl 0).
	Offline(h Handle) Status

	// SetEOT enables or disables EOI assertion on the last written byte (ibeot).
	SetEOT(h Handle, assert bool) Status
	// AskTimeout returns the current timeout of h (ibask IbaTMO).
	AskTimeout(h Handle) (TimeoutSetting, Status)
	// SetTimeout changes the timeout of h (ibtmo).
	SetTimeout(h Handle, t TimeoutSetting) Status
	// AskPAD returns the primary address of a device (ibask IbaPAD).
	AskPAD(h Handle) (int, Status)
	// AskBoard returns the board index a device is attached to (ibask IbaBNA).
	AskBoard(h Handle) (int, Status)
	// Listener reports whether a device answers at the address (ibln).
	// board must be a board handle.
	Listener(board Handle, pad, sad int) (bool, Status)

	// StartWrite submits an asynchronous write and returns immediately (ibwrta).
	StartWrite(h Handle, data []byte) Status
	// StartRead submits an asynchronous read into buf and returns immediately (ibrda).
	StartRead(h Handle, buf []byte) Status
	// Wait blocks until one of the mask conditions holds or the handle's
	// timeout expires (ibwait).
	Wait(h Handle, mask WaitMask) Status
	// Stop aborts the in-flight asynchronous operation (ibstop).
	Stop(h Handle) Status
	// AsyncResult returns the final status, count and error of the last
	// asynchronous operation (AsyncIbsta, AsyncIbcnt, AsyncIberr).
	AsyncResult(h Handle) Status

	// Write performs a blocking write (ibwrt).
	Write(h Handle, data []byte) Status
	// Read performs a blocking read (ibrd).
	Read(h Handle, buf []byte) Status
	// Clear sends the selected device clear message (ibclr).
	Clear(h Handle) Status
	// Local returns the device to local front panel control (ibloc).
	Local(h Handle) Status
}
