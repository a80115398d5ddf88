package main

import (
	"io"

	"github.com/rs/zerolog"
	"go2tv.app/castbutton/castmanager"
)

// watchListener prints every coordinator callback as one log line.
type watchListener struct {
	log   zerolog.Logger
	coord *castmanager.Coordinator
}

func newWatchListener(out io.Writer, coord *castmanager.Coordinator) *watchListener {
	return &watchListener{
		log:   zerolog.New(out).With().Timestamp().Logger(),
		coord: coord,
	}
}

func (w *watchListener) scan(state string) {
	w.log.Info().Str("State", state).Msg("cast state")
}

func (w *watchListener) session(event string) *zerolog.Event {
	ev := w.log.Info().Str("Event", event)
	if sess := w.coord.ActiveSession(); sess != nil {
		ev = ev.Str("Device", sess.Device().Name)
	}
	return ev
}

func (w *watchListener) OnNoDevicesAvailable() { w.scan("no devices available") }
func (w *watchListener) OnDeviceNotConnected() { w.scan("not connected") }
func (w *watchListener) OnDeviceConnecting()   { w.scan("connecting") }
func (w *watchListener) OnDeviceConnected()    { w.scan("connected") }

func (w *watchListener) OnSessionStarting() { w.session("starting").Msg("session") }
func (w *watchListener) OnSessionStarted(sessionID string) {
	w.session("started").Str("SessionID", sessionID).Msg("session")
}
func (w *watchListener) OnSessionStartFailed(code int) {
	w.session("start failed").Int("Code", code).Msg("session")
}
func (w *watchListener) OnSessionEnding() { w.session("ending").Msg("session") }
func (w *watchListener) OnSessionEnded(code int) {
	w.session("ended").Int("Code", code).Msg("session")
}
func (w *watchListener) OnSessionResuming(sessionID string) {
	w.session("resuming").Str("SessionID", sessionID).Msg("session")
}
func (w *watchListener) OnSessionResumed(wasSuspended bool) {
	w.session("resumed").Bool("WasSuspended", wasSuspended).Msg("session")
}
func (w *watchListener) OnSessionResumeFailed(code int) {
	w.session("resume failed").Int("Code", code).Msg("session")
}
func (w *watchListener) OnSessionSuspended(reason int) {
	w.session("suspended").Int("Reason", reason).Msg("session")
}
