package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerPool(t *testing.T) {
	assert := assert.New(t)

	t.Run("Get and Put", func(t *testing.T) {
		timer1 := GetTimer(10 * time.Millisecond)
		assert.NotNil(timer1)
		PutTimer(timer1)

		timer2 := GetTimer(20 * time.Millisecond)
		assert.NotNil(timer2)
		<-timer2.C
		PutTimer(timer2)
	})

	t.Run("Put unfired timer", func(t *testing.T) {
		timer := GetTimer(time.Hour)
		PutTimer(timer)

		reused := GetTimer(5 * time.Millisecond)
		select {
		case <-reused.C:
		case <-time.After(time.Second):
			t.Fatal("reused timer did not fire")
		}
		PutTimer(reused)
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tm := GetTimer(time.Millisecond)
				<-tm.C
				PutTimer(tm)
			}()
		}
		wg.Wait()
	})
}

func TestWaitSignal(t *testing.T) {
	ch := make(chan struct{}, 1)
	assert.False(t, WaitSignal(ch, 5*time.Millisecond))

	ch <- struct{}{}
	assert.True(t, WaitSignal(ch, time.Second))

	closed := make(chan struct{})
	close(closed)
	assert.True(t, WaitSignal(closed, -1))
}
