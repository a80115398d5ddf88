package castprotocol

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
	"go2tv.app/castbutton/devices"
	"go2tv.app/castbutton/internal/utils"
)

const defaultCastPort = 8009

// castApp is the part of go-chromecast's Application a Session drives.
type castApp interface {
	Start(addr string, port int) error
	Update() error
	Status() (*cast.Application, *cast.Media, *cast.Volume)
	SetVolume(level float32) error
	SetMuted(muted bool) error
	Close(stopMedia bool) error
}

var newCastApp = func() castApp {
	return application.NewApplication(
		application.WithConnection(cast.NewConnection()),
		application.WithConnectionRetries(5), // slow TVs need time to wake
	)
}

// Session is a connection between this process and one receiver.
// Session pointers are the session identity: two events refer to the
// same session only if they carry the same *Session.
type Session struct {
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	id     string
	device devices.Device
	host   string
	port   int

	// mu serializes commands on app. connected is read without it so
	// state checks never wait behind network I/O.
	mu        sync.Mutex
	app       castApp
	connected atomic.Bool
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (s *Session) Log() *zerolog.Logger {
	if s.LogOutput != nil {
		s.initLogOnce.Do(func() {
			s.Logger = zerolog.New(s.LogOutput).With().Timestamp().Str("Session", s.id).Logger()
		})
	}
	return &s.Logger
}

// NewSession prepares a session for dev without touching the network.
func NewSession(dev devices.Device) (*Session, error) {
	u, err := url.Parse(dev.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse device addr: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse device addr: missing host in %q", dev.Addr)
	}

	port := defaultCastPort
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("parse device port: %w", err)
		}
	}

	id, err := utils.NewSessionID()
	if err != nil {
		return nil, err
	}

	return &Session{
		id:     id,
		device: dev,
		host:   u.Hostname(),
		port:   port,
		app:    newCastApp(),
	}, nil
}

// ID is the identifier reported on Started and Resuming.
func (s *Session) ID() string {
	return s.id
}

// Device returns the receiver the session was created for.
func (s *Session) Device() devices.Device {
	return s.device
}

// HostPort returns the receiver's control address as host:port.
func (s *Session) HostPort() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Connect establishes the control connection.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

// Reconnect replaces the control connection with a freshly dialed one.
// go-chromecast only redials after an explicit Close, so a link that
// died underneath must not be reused. It gives up without dialing once
// ctx is done.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.connected.Store(false)
	if err := s.app.Close(false); err != nil {
		s.Log().Debug().Str("Method", "Reconnect").Err(err).Msg("closing stale connection")
	}
	s.app = newCastApp()

	return s.connectLocked()
}

func (s *Session) connectLocked() error {
	s.Log().Debug().Str("Method", "Connect").Str("Host", s.host).Int("Port", s.port).Msg("connecting")
	if err := s.app.Start(s.host, s.port); err != nil {
		s.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}
	s.connected.Store(true)
	s.Log().Debug().Str("Method", "Connect").Msg("connected successfully")
	return nil
}

// IsConnected returns whether the control connection is up.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

func (s *Session) markDisconnected() {
	s.connected.Store(false)
}

// SetVolume sets volume (0.0 to 1.0).
func (s *Session) SetVolume(level float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log().Debug().Str("Method", "SetVolume").Float32("Level", level).Msg("setting volume")
	err := s.app.SetVolume(level)
	if err != nil {
		s.Log().Error().Str("Method", "SetVolume").Err(err).Msg("failed")
	}
	return err
}

// SetMuted sets mute state.
func (s *Session) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log().Debug().Str("Method", "SetMuted").Bool("Muted", muted).Msg("setting mute")
	err := s.app.SetMuted(muted)
	if err != nil {
		s.Log().Error().Str("Method", "SetMuted").Err(err).Msg("failed")
	}
	return err
}

// AdjustVolume moves the receiver volume by delta, clamped to [0, 1].
func (s *Session) AdjustVolume(delta float32) error {
	status, err := s.GetStatus()
	if err != nil {
		return err
	}

	newVolume := status.Volume + delta
	switch {
	case newVolume > 1.0:
		newVolume = 1.0
	case newVolume < 0.0:
		newVolume = 0.0
	}

	return s.SetVolume(newVolume)
}

// GetStatus requests fresh receiver status from the device.
func (s *Session) GetStatus() (*CastStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.app.Update(); err != nil {
		s.Log().Error().Str("Method", "GetStatus").Err(err).Msg("app.Update failed")
		return nil, err
	}

	app, media, vol := s.app.Status()
	status := &CastStatus{PlayerState: "IDLE"}
	if app != nil {
		status.AppName = app.DisplayName
	}
	if vol != nil {
		status.Volume = float32(vol.Level)
		status.Muted = vol.Muted
	}
	if media != nil {
		status.PlayerState = media.PlayerState
		status.CurrentTime = media.CurrentTime
		if media.Media.Duration > 0 {
			status.Duration = media.Media.Duration
		}
		status.MediaTitle = media.Media.Metadata.Title
	}
	return status, nil
}

// Close disconnects from the receiver, optionally stopping its media.
func (s *Session) Close(stopMedia bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Log().Debug().Str("Method", "Close").Bool("StopMedia", stopMedia).Msg("closing connection")
	s.connected.Store(false)
	err := s.app.Close(stopMedia)
	if err != nil {
		s.Log().Error().Str("Method", "Close").Err(err).Msg("failed")
	}
	return err
}
