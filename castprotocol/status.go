package castprotocol

// CastStatus is a snapshot of the receiver behind a session.
type CastStatus struct {
	AppName     string  // Display name of the running receiver app, empty on the idle screen
	PlayerState string  // "PLAYING", "PAUSED", "IDLE", "BUFFERING"
	CurrentTime float32 // Current position in seconds
	Duration    float32 // Total duration in seconds
	Volume      float32 // Volume level (0.0 to 1.0)
	Muted       bool
	MediaTitle  string
}
