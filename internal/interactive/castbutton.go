package interactive

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"go2tv.app/castbutton/castmanager"
	"go2tv.app/castbutton/castprotocol"
	"go2tv.app/castbutton/devices"
)

const statusPollInterval = 1 * time.Second

// Controller is the part of the cast provider the screen drives directly.
type Controller interface {
	CastState() castprotocol.CastState
	Devices() []devices.Device
	StartSession(dev devices.Device) error
	EndSession(stopMedia bool) error
}

// CastButtonScreen is a terminal cast button: it shows the discovery
// state, the receivers to pick from and the session lifecycle. It is the
// consumer of both coordinator listener streams.
//
// Every method runs on the screen's event loop.
type CastButtonScreen struct {
	Current     tcell.Screen
	Coordinator *castmanager.Coordinator
	Provider    Controller

	exec        *ScreenExecutor
	exitCTXfunc context.CancelFunc

	state      castprotocol.CastState
	status     *castprotocol.CastStatus
	lastAction string
	selected   int
	paused     bool
	closed     bool
}

// InitCastButtonScreen wires a cast button screen to an already created
// tcell screen. exec must be the executor the provider posts through.
func InitCastButtonScreen(s tcell.Screen, exec *ScreenExecutor, coord *castmanager.Coordinator, provider Controller, ctxCancel context.CancelFunc) *CastButtonScreen {
	return &CastButtonScreen{
		Current:     s,
		Coordinator: coord,
		Provider:    provider,
		exec:        exec,
		exitCTXfunc: ctxCancel,
	}
}

func (p *CastButtonScreen) emitStr(x, y int, style tcell.Style, str string) {
	s := p.Current
	for _, c := range str {
		var comb []rune
		w := runewidth.RuneWidth(c)
		if w == 0 {
			comb = []rune{c}
			c = ' '
			w = 1
		}
		s.SetContent(x, y, c, comb, style)
		x += w
	}
}

func (p *CastButtonScreen) stateLabel() string {
	if p.paused {
		return "Paused"
	}

	switch p.state {
	case castprotocol.NoDevicesAvailable:
		return "No devices found"
	case castprotocol.NotConnected:
		return "Ready to cast"
	case castprotocol.Connecting:
		return "Connecting..."
	case castprotocol.Connected:
		if sess := p.Coordinator.ActiveSession(); sess != nil {
			return "Casting to " + sess.Device().Name
		}
		return "Connected"
	default:
		return "Searching..."
	}
}

// Render draws the whole screen.
func (p *CastButtonScreen) Render() {
	if p.closed {
		return
	}

	s := p.Current
	w, h := s.Size()
	boldStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Bold(true)
	blinkStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Blink(true)

	s.Clear()

	p.emitStr(1, 1, tcell.StyleDefault, "Press ESC to exit.")

	label := "[Cast] " + p.stateLabel()
	labelStyle := boldStyle
	if p.state == castprotocol.Connecting && !p.paused {
		labelStyle = blinkStyle
	}
	p.emitStr(w/2-runewidth.StringWidth(label)/2, 3, labelStyle, label)

	devs := p.Provider.Devices()
	if p.selected >= len(devs) {
		p.selected = max(len(devs)-1, 0)
	}
	for i, d := range devs {
		prefix := "  "
		style := tcell.StyleDefault
		if i == p.selected {
			prefix = "> "
			style = boldStyle
		}
		p.emitStr(4, 5+i, style, fmt.Sprintf("%s%d. %s", prefix, i+1, d.Label()))
	}

	row := 6 + len(devs)
	if p.status != nil {
		volume := fmt.Sprintf("Volume: %d%%", int(p.status.Volume*100+0.5))
		if p.status.Muted {
			volume += " (muted)"
		}
		p.emitStr(4, row, tcell.StyleDefault, volume)
		if p.status.AppName != "" {
			p.emitStr(4, row+1, tcell.StyleDefault, "App: "+p.status.AppName)
		}
	}

	if p.lastAction != "" {
		p.emitStr(w/2-runewidth.StringWidth(p.lastAction)/2, h-4, boldStyle, p.lastAction)
	}
	help := `"Up" "Down" (Select)  "Enter" (Connect)  "d" (Disconnect)  "Page Up" "Page Down" (Volume)`
	p.emitStr(w/2-runewidth.StringWidth(help)/2, h-2, tcell.StyleDefault, help)

	s.Show()
}

// EmitMsg shows msg on the action line.
func (p *CastButtonScreen) EmitMsg(msg string) {
	p.lastAction = msg
	p.Render()
}

// InterInit initializes the terminal, sets up the coordinator and runs
// the event loop until the screen is closed.
func (p *CastButtonScreen) InterInit(ctx context.Context) error {
	s := p.Current
	if err := s.Init(); err != nil {
		return fmt.Errorf("castbutton interactive: %w", err)
	}

	defStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite)
	s.SetStyle(defStyle)
	s.EnableFocus()

	if err := p.Coordinator.SetUp(ctx); err != nil {
		s.Fini()
		return err
	}

	if err := p.Resume(); err != nil {
		s.Fini()
		return err
	}

	go func() {
		ticker := time.NewTicker(statusPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.exec.Post(p.Fini)
				return
			case <-ticker.C:
				p.exec.Post(p.pollStatus)
			}
		}
	}()

	for {
		switch ev := s.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			if e, ok := ev.Data().(*ScreenExecutor); ok {
				e.Drain()
			}
		case *tcell.EventFocus:
			if ev.Focused {
				_ = p.Resume()
			} else {
				p.Pause()
			}
		case *tcell.EventResize:
			s.Sync()
			p.Render()
		case *tcell.EventKey:
			p.HandleKeyEvent(ev)
		}
	}
}

// Pause ends the scanning period while the terminal is out of focus.
func (p *CastButtonScreen) Pause() {
	if p.closed || p.paused {
		return
	}
	p.Coordinator.StopScanning()
	p.paused = true
	p.Render()
}

// Resume starts a scanning period with this screen as both listeners.
// The first frame uses the provider's current state since the
// coordinator does not replay it.
func (p *CastButtonScreen) Resume() error {
	if p.closed {
		return nil
	}
	if err := p.Coordinator.StartScanning(p, p); err != nil {
		return fmt.Errorf("castbutton interactive: %w", err)
	}
	p.paused = false
	p.state = p.Provider.CastState()
	p.Render()
	return nil
}

// HandleKeyEvent offers the key to casting volume control first.
func (p *CastButtonScreen) HandleKeyEvent(ev *tcell.EventKey) {
	if p.Coordinator.DispatchKeyEvent(ev) {
		return
	}

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		p.Fini()
		return
	case tcell.KeyUp:
		if p.selected > 0 {
			p.selected--
		}
		p.Render()
		return
	case tcell.KeyDown:
		p.selected++
		p.Render()
		return
	case tcell.KeyEnter:
		p.connectSelected()
		return
	}

	switch ev.Rune() {
	case 'd':
		if err := p.Provider.EndSession(true); err != nil {
			p.EmitMsg("Nothing to disconnect")
		}
	case 'q':
		p.Fini()
	}
}

func (p *CastButtonScreen) connectSelected() {
	devs := p.Provider.Devices()
	dev, err := devices.DevicePicker(devs, p.selected+1)
	if err != nil {
		p.EmitMsg("No device selected")
		return
	}

	if err := p.Provider.StartSession(dev); err != nil {
		p.EmitMsg(fmt.Sprintf("Cannot connect: %s", err))
	}
}

// pollStatus fetches receiver status off the loop and renders it when it
// still belongs to the tracked session.
func (p *CastButtonScreen) pollStatus() {
	sess := p.Coordinator.ActiveSession()
	if p.closed || sess == nil || !sess.IsConnected() {
		p.status = nil
		p.Render()
		return
	}

	go func() {
		status, err := sess.GetStatus()
		p.exec.Post(func() {
			if err != nil || p.Coordinator.ActiveSession() != sess {
				return
			}
			p.status = status
			p.Render()
		})
	}()
}

// Fini stops scanning, closes the screen and exits.
func (p *CastButtonScreen) Fini() {
	if p.closed {
		return
	}
	p.closed = true
	p.Coordinator.StopScanning()
	p.Current.Fini()
	p.exitCTXfunc()
}

func (p *CastButtonScreen) setState(s castprotocol.CastState) {
	p.state = s
	p.Render()
}

func (p *CastButtonScreen) OnNoDevicesAvailable() { p.setState(castprotocol.NoDevicesAvailable) }
func (p *CastButtonScreen) OnDeviceNotConnected() { p.setState(castprotocol.NotConnected) }
func (p *CastButtonScreen) OnDeviceConnecting()   { p.setState(castprotocol.Connecting) }
func (p *CastButtonScreen) OnDeviceConnected()    { p.setState(castprotocol.Connected) }

func (p *CastButtonScreen) OnSessionStarting() {
	p.EmitMsg("Starting session...")
}

func (p *CastButtonScreen) OnSessionStarted(sessionID string) {
	p.EmitMsg("Session " + sessionID + " started")
}

func (p *CastButtonScreen) OnSessionStartFailed(code int) {
	p.EmitMsg(fmt.Sprintf("Failed to start session (code %d)", code))
}

func (p *CastButtonScreen) OnSessionEnding() {
	p.EmitMsg("Disconnecting...")
}

func (p *CastButtonScreen) OnSessionEnded(code int) {
	p.status = nil
	if code != castprotocol.StatusSuccess {
		p.EmitMsg(fmt.Sprintf("Session ended (code %d)", code))
		return
	}
	p.EmitMsg("Session ended")
}

func (p *CastButtonScreen) OnSessionResuming(sessionID string) {
	p.EmitMsg("Reconnecting session " + sessionID + "...")
}

func (p *CastButtonScreen) OnSessionResumed(wasSuspended bool) {
	if wasSuspended {
		p.EmitMsg("Session resumed after connection loss")
		return
	}
	p.EmitMsg("Session resumed")
}

func (p *CastButtonScreen) OnSessionResumeFailed(code int) {
	p.status = nil
	p.EmitMsg(fmt.Sprintf("Could not reconnect (code %d)", code))
}

func (p *CastButtonScreen) OnSessionSuspended(reason int) {
	p.EmitMsg(fmt.Sprintf("Connection lost (code %d)", reason))
}
