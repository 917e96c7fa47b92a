package alarm

import "context"

// Handler receives what a protocol adapter observes on a panel session.
type Handler interface {
	// Event delivers a decoded panel report.
	Event(Event)
	// Authenticating is called once the transport is up and the adapter
	// starts its handshake.
	Authenticating()
	// FrameError is called for every frame dropped by the decoder.
	FrameError(error)
}

// Adapter is a panel protocol, either waiting for the panel to connect or
// connecting to it.
type Adapter interface {
	Protocol() string
	Capabilities() Capabilities
	// Open blocks until a panel session is established.
	Open(ctx context.Context, h Handler) (Session, error)
	// Close releases every resource held by the adapter.
	Close() error
}

// Session is an established panel connection.
type Session interface {
	// Serve blocks reading the connection until it fails or is closed.
	Serve(ctx context.Context) error
	// Poll requests the panel status, delivering it to the Handler.
	Poll(ctx context.Context) error
	// Send sends cmd and waits for its acknowledgement.
	Send(ctx context.Context, cmd Command) error
	Close() error
}
