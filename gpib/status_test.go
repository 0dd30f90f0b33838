package gpib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromBits(t *testing.T) {
	st := StatusFromBits(0x8000|0x4000, int(EABO), 12)
	assert.True(t, st.Errored)
	assert.True(t, st.TimedOut)
	assert.False(t, st.Completed)
	assert.False(t, st.EndOfData)
	assert.Equal(t, EABO, st.Err)
	assert.Equal(t, 12, st.Count)
	assert.True(t, st.Failed())
	assert.Equal(t, uint16(0xC000), st.Bits())

	done := StatusFromBits(0x2100, 0, 5)
	assert.True(t, done.Completed)
	assert.True(t, done.EndOfData)
	assert.True(t, done.OK())
	assert.Equal(t, "2100[END|CMPL] count=5", done.String())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "0000[-] count=0", Status{}.String())
	assert.Equal(t, "8000[ERR] count=0 err=EBUS", Failure(EBUS).String())
	assert.Equal(t, "E99", ErrorCode(99).String())
}

func TestWaitMask(t *testing.T) {
	m := WaitTimeout | WaitComplete
	assert.True(t, m.Has(WaitTimeout))
	assert.True(t, m.Has(WaitComplete))
	assert.False(t, m.Has(WaitEnd))
}

func TestTimeoutSetting(t *testing.T) {
	assert.Equal(t, 30*time.Millisecond, T30ms.Duration())
	assert.Equal(t, time.Duration(0), TNONE.Duration())
	assert.True(t, TNONE.Infinite())
	assert.False(t, TimeoutSetting(42).Valid())
	assert.Equal(t, "TNONE", TNONE.String())
	assert.Equal(t, "T1s", T1s.String())
	assert.Equal(t, "TimeoutSetting(42)", TimeoutSetting(42).String())
	// the bus setting and the transfer outcome are distinct names
	assert.Equal(t, "Timeout", Timeout.String())

	assert.Equal(t, TNONE, TimeoutFor(0))
	assert.Equal(t, T30ms, TimeoutFor(30*time.Millisecond))
	assert.Equal(t, T100ms, TimeoutFor(31*time.Millisecond))
	assert.Equal(t, T1000s, TimeoutFor(time.Hour))
}

func TestOutcome(t *testing.T) {
	assert.NoError(t, OK.Err())
	assert.ErrorIs(t, Error.Err(), ErrDriver)
	assert.ErrorIs(t, Timeout.Err(), ErrTimeout)
	assert.ErrorIs(t, Abort.Err(), ErrAborted)
	assert.ErrorIs(t, PreviousError.Err(), ErrPreviousError)
	assert.Equal(t, "PreviousError", PreviousError.String())

	assert.Equal(t, OK, Worst(OK, Continue))
	assert.Equal(t, Abort, Worst(OK, Abort))
	assert.Equal(t, Timeout, Worst(Abort, Timeout))
	assert.Equal(t, Error, Worst(Error, PreviousError))
}

func TestPendingOperation_Advance(t *testing.T) {
	op := &pendingOperation{deadline: 10}

	var notices []int
	for i := 0; i < 250; i++ {
		if secs, due := op.advance(); due {
			notices = append(notices, secs)
		}
	}
	assert.Equal(t, []int{5, 6, 7}, notices)
	assert.InDelta(t, 7.5, op.elapsed, 1e-9)
	assert.False(t, op.expired())
}
