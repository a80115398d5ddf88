package castprotocol

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/vishen/go-chromecast/cast"
	"go2tv.app/castbutton/devices"
)

type mockApp struct {
	mock.Mock
}

func (m *mockApp) Start(addr string, port int) error {
	return m.Called(addr, port).Error(0)
}

func (m *mockApp) Update() error {
	return m.Called().Error(0)
}

func (m *mockApp) Status() (*cast.Application, *cast.Media, *cast.Volume) {
	args := m.Called()
	return args.Get(0).(*cast.Application), args.Get(1).(*cast.Media), args.Get(2).(*cast.Volume)
}

func (m *mockApp) SetVolume(level float32) error {
	return m.Called(level).Error(0)
}

func (m *mockApp) SetMuted(muted bool) error {
	return m.Called(muted).Error(0)
}

func (m *mockApp) Close(stopMedia bool) error {
	return m.Called(stopMedia).Error(0)
}

// useMockApp makes every NewSession and Reconnect in the test use app.
func useMockApp(t *testing.T, app *mockApp) {
	t.Helper()
	useMockApps(t, app)
}

// useMockApps hands out apps in order, repeating the last one. Close is
// allowed on all of them since shutdown and reconnects may call it.
func useMockApps(t *testing.T, apps ...*mockApp) {
	t.Helper()
	for _, app := range apps {
		app.On("Close", mock.Anything).Return(nil).Maybe()
	}

	var mu sync.Mutex
	next := 0

	orig := newCastApp
	t.Cleanup(func() { newCastApp = orig })
	newCastApp = func() castApp {
		mu.Lock()
		defer mu.Unlock()
		app := apps[min(next, len(apps)-1)]
		next++
		return app
	}
}

type fakeDiscovery struct {
	mu       sync.Mutex
	devs     []devices.Device
	startErr error
	starts   int
	onChange []func()
}

func (f *fakeDiscovery) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeDiscovery) Devices() []devices.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]devices.Device{}, f.devs...)
}

func (f *fakeDiscovery) OnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = append(f.onChange, fn)
}

func (f *fakeDiscovery) set(devs ...devices.Device) {
	f.mu.Lock()
	f.devs = devs
	fns := append([]func(){}, f.onChange...)
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

type recorder struct {
	mu       sync.Mutex
	states   []CastState
	sessions []SessionEvent
}

func (r *recorder) CastStateChanged(ev StateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ev.State)
}

func (r *recorder) SessionChanged(ev SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, ev)
}

func (r *recorder) stateList() []CastState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CastState{}, r.states...)
}

func (r *recorder) sessionTypes() []SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionEventType, 0, len(r.sessions))
	for _, ev := range r.sessions {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) sessionEvents() []SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionEvent{}, r.sessions...)
}

var livingRoom = devices.Device{Name: "Living Room", Addr: "http://192.168.1.40:8009"}
