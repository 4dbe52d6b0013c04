package core

// MediaConnection is a secondary, frame-only path for one connection
// (a WebRTC data channel). The adapter owns it.
type MediaConnection interface {
	Conn
	// OnFrame sets the callback for frames received on the media path.
	OnFrame(func(Frame))
	// OnClosed sets a callback for cleanup of the media path.
	OnClosed(func())
}

// MediaRouter is implemented by control connections that can move their
// outbound frames onto an attached MediaConnection.
type MediaRouter interface {
	AttachMedia(MediaConnection)
	DetachMedia(MediaConnection)
	// TrySendMedia prefers the media path and falls back to TrySend.
	TrySendMedia(Frame) error
}

func sendFrame(c Conn, data Frame) error {
	if r, ok := c.(MediaRouter); ok {
		return r.TrySendMedia(data)
	}
	return c.TrySend(data)
}
