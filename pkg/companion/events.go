package companion

// ServerEvent is one event received from the live endpoint. Events are
// delivered strictly in arrival order.
//
// Use a type switch to handle events:
//
//	switch e := event.(type) {
//	case companion.AudioChunkEvent:
//		scheduler.Schedule(e.Data)
//	case companion.ClosedEvent:
//		// server ended the session
//	case companion.ErrorEvent:
//		// connection failed
//	}
type ServerEvent interface {
	serverEventType() string
}

// OpenedEvent signals the endpoint accepted the session configuration.
type OpenedEvent struct{}

func (OpenedEvent) serverEventType() string { return "opened" }

// AudioChunkEvent carries one block of synthesized speech as raw s16le
// PCM at 24 kHz.
type AudioChunkEvent struct {
	Data []byte
}

func (AudioChunkEvent) serverEventType() string { return "audio_chunk" }

// ClosedEvent signals a clean server-initiated close.
type ClosedEvent struct {
	Reason string
}

func (ClosedEvent) serverEventType() string { return "closed" }

// ErrorEvent carries a connection-layer failure. It is the last event
// on the channel before it closes.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) serverEventType() string { return "error" }
