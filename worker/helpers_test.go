package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/gpib/gpibtest"
	"github.com/arloliu/go-gpib/logger"
	"github.com/arloliu/go-gpib/worker"
	"github.com/stretchr/testify/require"
)

const (
	testDeviceName = "hp8753"
	testPAD        = 16
	testIdentity   = "HEWLETT PACKARD,8753C,0,4.13\n"
	waitTimeout    = 5 * time.Second
)

type completion struct {
	kind   worker.Kind
	result worker.Result
}

type recordingSink struct {
	mu        sync.Mutex
	infos     []string
	errors    []string
	completes []completion
}

func (s *recordingSink) PostInfo(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, text)
}

func (s *recordingSink) PostError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, text)
}

func (s *recordingSink) PostCommandComplete(kind worker.Kind, result worker.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes = append(s.completes, completion{kind: kind, result: result})
}

func (s *recordingSink) Infos() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.infos...)
}

func (s *recordingSink) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

func (s *recordingSink) Completes() []completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completion(nil), s.completes...)
}

// newIdentifiedBus returns a bus with one analyzer answering the identity query.
func newIdentifiedBus(identity string) *gpibtest.Bus {
	bus := gpibtest.NewBus()
	bus.AddDevice(testDeviceName, 0, testPAD)
	bus.Respond(func(cmd []byte) []byte {
		if string(cmd) == worker.DefaultIdentityQuery {
			return []byte(identity)
		}
		return nil
	})

	return bus
}

func newTestDeviceConfig(t *testing.T) *gpib.DeviceConfig {
	t.Helper()

	cfg, err := gpib.NewDeviceConfig(
		gpib.WithDeviceName(testDeviceName),
		gpib.WithLogger(logger.NewPermissiveMockLogger()),
		gpib.WithLocalSettleDelay(0),
		gpib.WithClearSettleDelay(0),
	)
	require.NoError(t, err)

	return cfg
}

func newTestDispatcher(t *testing.T, bus gpib.Bus, opts ...worker.DispatcherOption) (*worker.Dispatcher, *recordingSink) {
	t.Helper()

	sink := &recordingSink{}
	base := []worker.DispatcherOption{
		worker.WithSink(sink),
		worker.WithLogger(logger.NewPermissiveMockLogger()),
	}
	d, err := worker.New(bus, newTestDeviceConfig(t), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	return d, sink
}

func startDispatcher(t *testing.T, d *worker.Dispatcher) {
	t.Helper()
	require.NoError(t, d.Start(context.Background()))
}

// submitAndWait submits a command of kind and waits for its result.
func submitAndWait(t *testing.T, d *worker.Dispatcher, kind worker.Kind, payload any) worker.Result {
	t.Helper()

	done := worker.NewCompletionChan()
	require.NoError(t, d.Submit(worker.Command{Kind: kind, Payload: payload, Token: done}))

	return waitResult(t, done)
}

func waitResult(t *testing.T, done worker.CompletionChan) worker.Result {
	t.Helper()

	select {
	case res := <-done:
		return res
	case <-time.After(waitTimeout):
		require.FailNow(t, "command did not complete")
		return worker.Result{}
	}
}

func waitHalted(t *testing.T, d *worker.Dispatcher) {
	t.Helper()

	select {
	case <-d.Done():
	case <-time.After(waitTimeout):
		require.FailNow(t, "dispatcher did not halt")
	}
}

func count(items []string, want string) int {
	n := 0
	for _, item := range items {
		if item == want {
			n++
		}
	}

	return n
}
