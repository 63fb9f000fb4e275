package companion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afrosatoshi1/flux-companion/pkg/companion/protocol"
)

const (
	defaultConnectTimeout = 15 * time.Second
	setupAckTimeout       = 10 * time.Second
	maxMessageSize        = 16 * 1024 * 1024
	closeGracePeriod      = 2 * time.Second
)

// DialConfig carries everything needed to open one live session.
type DialConfig struct {
	// Endpoint overrides the default streaming endpoint. Used by tests.
	Endpoint string
	// APIKey authenticates the connection. Required.
	APIKey string
	// Model overrides protocol.DefaultModel.
	Model string
	// Voice overrides protocol.DefaultVoice.
	Voice string
	// SystemPersona is the system instruction for the session, already
	// rendered with the companion's display name.
	SystemPersona string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Connection owns one streaming session to the live endpoint. It is
// created by Dial, after the server has acknowledged the session setup.
//
// All websocket writes go through a single mutex; gorilla/websocket
// allows at most one concurrent writer.
type Connection struct {
	ws  *websocket.Conn
	log *slog.Logger

	events chan ServerEvent
	stop   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// Dial opens the websocket, sends the session setup and waits for the
// server's acknowledgment. The returned connection is live: OpenedEvent
// is already queued on Events.
func Dial(ctx context.Context, cfg DialConfig) (*Connection, error) {
	if cfg.APIKey == "" {
		return nil, NewConfigurationError("missing API key")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = protocol.DefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = protocol.DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	voice := cfg.Voice
	if voice == "" {
		voice = protocol.DefaultVoice
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", cfg.APIKey)
	dialer := websocket.Dialer{HandshakeTimeout: defaultConnectTimeout}
	ws, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live endpoint: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	setup := protocol.SetupMessage{
		Setup: protocol.Setup{
			Model: model,
			GenerationConfig: &protocol.GenerationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &protocol.SpeechConfig{
					VoiceConfig: &protocol.VoiceConfig{
						PrebuiltVoiceConfig: &protocol.PrebuiltVoiceConfig{VoiceName: voice},
					},
				},
			},
		},
	}
	if cfg.SystemPersona != "" {
		setup.Setup.SystemInstruction = &protocol.Content{
			Parts: []protocol.Part{{Text: cfg.SystemPersona}},
		}
	}
	if err := ws.WriteJSON(setup); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	if err := awaitSetupComplete(ws); err != nil {
		ws.Close()
		return nil, err
	}

	c := &Connection{
		ws:     ws,
		log:    log,
		events: make(chan ServerEvent, 256),
		stop:   make(chan struct{}),
	}
	c.events <- OpenedEvent{}
	go c.readLoop()
	log.Debug("live connection established", "model", model, "voice", voice)
	return c, nil
}

func awaitSetupComplete(ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(setupAckTimeout))
	defer ws.SetReadDeadline(time.Time{})
	_, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("await setup ack: %w", err)
	}
	var msg protocol.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode setup ack: %w", err)
	}
	if msg.SetupComplete == nil {
		return errors.New("session setup not acknowledged")
	}
	return nil
}

// Events yields server events in arrival order. The channel closes
// after the read loop ends; ClosedEvent or ErrorEvent precedes the
// close unless the connection was closed locally.
func (c *Connection) Events() <-chan ServerEvent {
	return c.events
}

// SendAudio transmits one encoded microphone packet.
func (c *Connection) SendAudio(pkt EncodedAudioPacket) error {
	return c.sendMedia(protocol.Blob{MimeType: pkt.MimeType, Data: pkt.Data})
}

// SendImage transmits one JPEG video snapshot.
func (c *Connection) SendImage(snap VideoSnapshot) error {
	return c.sendMedia(protocol.Blob{
		MimeType: ImageMimeType,
		Data:     base64.StdEncoding.EncodeToString(snap.JPEG),
	})
}

func (c *Connection) sendMedia(chunk protocol.Blob) error {
	if c.closed.Load() {
		return errors.New("connection is closed")
	}
	msg := protocol.RealtimeInputMessage{
		RealtimeInput: protocol.RealtimeInput{MediaChunks: []protocol.Blob{chunk}},
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

// Close shuts the connection down. Safe to call multiple times and
// concurrently with the read loop.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	return nil
}

func (c *Connection) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(ClosedEvent{Reason: "server closed the session"})
			} else {
				c.emit(ErrorEvent{Err: err})
			}
			return
		}
		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.emit(ErrorEvent{Err: fmt.Errorf("decode server frame: %w", err)})
			return
		}
		c.dispatch(&msg)
	}
}

func (c *Connection) dispatch(msg *protocol.ServerMessage) {
	switch {
	case msg.SetupComplete != nil:
		// Already handled at dial time.
	case msg.GoAway != nil:
		c.emit(ClosedEvent{Reason: "server go-away"})
	case msg.ServerContent != nil:
		turn := msg.ServerContent.ModelTurn
		if turn == nil {
			return
		}
		for _, part := range turn.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				c.log.Warn("skip malformed audio part", "error", err)
				continue
			}
			c.emit(AudioChunkEvent{Data: raw})
		}
	}
}

// emit blocks until the consumer takes the event or the connection is
// closed. Blocking keeps arrival order intact; audio segments must
// never be dropped.
func (c *Connection) emit(event ServerEvent) {
	select {
	case c.events <- event:
	case <-c.stop:
	}
}
