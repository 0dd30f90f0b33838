package gpib_test

import (
	"sync"
	"testing"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/gpib/gpibtest"
	"github.com/arloliu/go-gpib/logger"
	"github.com/stretchr/testify/require"
)

const (
	testDeviceName = "hp8753"
	testPAD        = 16
)

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *recordingNotifier) PostInfo(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, text)
}

func (n *recordingNotifier) PostError(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, text)
}

func (n *recordingNotifier) Infos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...)
}

func newTestConfig(t *testing.T, opts ...gpib.DeviceOption) *gpib.DeviceConfig {
	t.Helper()

	base := []gpib.DeviceOption{
		gpib.WithLogger(logger.NewPermissiveMockLogger()),
		gpib.WithLocalSettleDelay(0),
		gpib.WithClearSettleDelay(0),
	}
	cfg, err := gpib.NewDeviceConfig(append(base, opts...)...)
	require.NoError(t, err)

	return cfg
}

func newTestBus() *gpibtest.Bus {
	bus := gpibtest.NewBus()
	bus.AddDevice(testDeviceName, 0, testPAD)

	return bus
}

func openTestSession(t *testing.T) (*gpibtest.Bus, *gpib.Session) {
	t.Helper()

	bus := newTestBus()
	s, err := gpib.OpenSession(bus, newTestConfig(t))
	require.NoError(t, err)

	return bus, s
}
