package companion

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afrosatoshi1/flux-companion/pkg/companion/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveTestServer runs handler on an upgraded websocket after completing
// the setup handshake. It records the setup message and the API key
// header it saw.
type liveTestServer struct {
	*httptest.Server
	setup  chan protocol.SetupMessage
	apiKey chan string
}

func newLiveTestServer(t *testing.T, handler func(ws *websocket.Conn)) *liveTestServer {
	t.Helper()
	s := &liveTestServer{
		setup:  make(chan protocol.SetupMessage, 1),
		apiKey: make(chan string, 1),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.apiKey <- r.Header.Get("x-goog-api-key")
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		var setup protocol.SetupMessage
		if err := ws.ReadJSON(&setup); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		s.setup <- setup
		if err := ws.WriteJSON(protocol.ServerMessage{SetupComplete: &protocol.SetupComplete{}}); err != nil {
			t.Errorf("write setup ack: %v", err)
			return
		}
		if handler != nil {
			handler(ws)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *liveTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func dialTest(t *testing.T, srv *liveTestServer) *Connection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, DialConfig{
		Endpoint:      srv.wsURL(),
		APIKey:        "test-key",
		SystemPersona: "You are Nova, a witty social AI.",
	})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDialHandshake(t *testing.T) {
	srv := newLiveTestServer(t, func(ws *websocket.Conn) {
		ws.ReadMessage() // hold the connection open until the client closes
	})
	conn := dialTest(t, srv)

	if key := <-srv.apiKey; key != "test-key" {
		t.Errorf("expected api key header, got %q", key)
	}
	setup := <-srv.setup
	if setup.Setup.Model != protocol.DefaultModel {
		t.Errorf("expected model %q, got %q", protocol.DefaultModel, setup.Setup.Model)
	}
	gc := setup.Setup.GenerationConfig
	if gc == nil || len(gc.ResponseModalities) != 1 || gc.ResponseModalities[0] != "AUDIO" {
		t.Errorf("expected AUDIO response modality, got %+v", gc)
	}
	if gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != protocol.DefaultVoice {
		t.Errorf("expected default voice, got %+v", gc.SpeechConfig)
	}
	if setup.Setup.SystemInstruction == nil || len(setup.Setup.SystemInstruction.Parts) == 0 {
		t.Fatal("expected a system instruction")
	}

	select {
	case event := <-conn.Events():
		if _, ok := event.(OpenedEvent); !ok {
			t.Errorf("expected OpenedEvent first, got %T", event)
		}
	case <-time.After(time.Second):
		t.Fatal("no opened event")
	}
}

func TestDialRequiresAPIKey(t *testing.T) {
	_, err := Dial(context.Background(), DialConfig{Endpoint: "ws://unused"})
	if err == nil {
		t.Fatal("expected an error")
	}
	cerr := Classify(err)
	if cerr.Kind != KindConfigurationMissing {
		t.Errorf("expected configuration error, got %q", cerr.Kind)
	}
}

func TestConnectionDeliversAudioInOrder(t *testing.T) {
	chunks := [][]byte{
		FloatToPCM([]float32{0.1, 0.1}),
		FloatToPCM([]float32{0.2, 0.2}),
		FloatToPCM([]float32{0.3, 0.3}),
	}
	srv := newLiveTestServer(t, func(ws *websocket.Conn) {
		for _, chunk := range chunks {
			msg := protocol.ServerMessage{
				ServerContent: &protocol.ServerContent{
					ModelTurn: &protocol.Content{
						Parts: []protocol.Part{{
							InlineData: &protocol.Blob{
								MimeType: "audio/pcm;rate=24000",
								Data:     base64.StdEncoding.EncodeToString(chunk),
							},
						}},
					},
				},
			}
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		}
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})
	conn := dialTest(t, srv)

	var got [][]byte
	sawClosed := false
	deadline := time.After(5 * time.Second)
	for !sawClosed {
		select {
		case event, ok := <-conn.Events():
			if !ok {
				t.Fatal("events channel closed before ClosedEvent")
			}
			switch e := event.(type) {
			case AudioChunkEvent:
				got = append(got, e.Data)
			case ClosedEvent:
				sawClosed = true
			case OpenedEvent:
			case ErrorEvent:
				t.Fatalf("unexpected error event: %v", e.Err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}

	if len(got) != len(chunks) {
		t.Fatalf("expected %d chunks, got %d", len(chunks), len(got))
	}
	for i := range chunks {
		if string(got[i]) != string(chunks[i]) {
			t.Errorf("chunk %d out of order or corrupted", i)
		}
	}
}

func TestConnectionSendAudio(t *testing.T) {
	received := make(chan protocol.RealtimeInputMessage, 1)
	srv := newLiveTestServer(t, func(ws *websocket.Conn) {
		var msg protocol.RealtimeInputMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		received <- msg
	})
	conn := dialTest(t, srv)

	pkt := EncodePCM([]float32{0.5, -0.5})
	if err := conn.SendAudio(pkt); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-received:
		if len(msg.RealtimeInput.MediaChunks) != 1 {
			t.Fatalf("expected 1 media chunk, got %d", len(msg.RealtimeInput.MediaChunks))
		}
		chunk := msg.RealtimeInput.MediaChunks[0]
		if chunk.MimeType != AudioMimeType {
			t.Errorf("expected MIME %q, got %q", AudioMimeType, chunk.MimeType)
		}
		if chunk.Data != pkt.Data {
			t.Error("payload does not match the encoded packet")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the audio chunk")
	}
}

func TestConnectionSendImage(t *testing.T) {
	received := make(chan protocol.RealtimeInputMessage, 1)
	srv := newLiveTestServer(t, func(ws *websocket.Conn) {
		var msg protocol.RealtimeInputMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		received <- msg
	})
	conn := dialTest(t, srv)

	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	if err := conn.SendImage(VideoSnapshot{JPEG: jpegData}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-received:
		chunk := msg.RealtimeInput.MediaChunks[0]
		if chunk.MimeType != ImageMimeType {
			t.Errorf("expected MIME %q, got %q", ImageMimeType, chunk.MimeType)
		}
		if chunk.Data != base64.StdEncoding.EncodeToString(jpegData) {
			t.Error("payload does not match the snapshot")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the image chunk")
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	srv := newLiveTestServer(t, func(ws *websocket.Conn) {
		ws.ReadMessage()
	})
	conn := dialTest(t, srv)
	if err := conn.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
	if err := conn.SendAudio(EncodePCM([]float32{0})); err == nil {
		t.Error("expected send after close to fail")
	}
}

func TestDialRejectsMissingSetupAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.ReadMessage()
		// Reply with content instead of the setup ack.
		ws.WriteJSON(protocol.ServerMessage{ServerContent: &protocol.ServerContent{}})
		ws.ReadMessage()
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), DialConfig{
		Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:   "test-key",
	})
	if err == nil {
		t.Fatal("expected dial to fail without a setup ack")
	}
}
