// Package protocol defines the JSON wire messages exchanged with the
// Gemini Live streaming endpoint (BidiGenerateContent over websocket).
package protocol

// DefaultEndpoint is the bidirectional streaming endpoint of the
// generative language service.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Default session parameters.
const (
	DefaultModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Kore"
)

// SetupMessage is the first client frame on a new connection.
type SetupMessage struct {
	Setup Setup `json:"setup"`
}

// Setup configures the model, output modality and voice for the session.
type Setup struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName,omitempty"`
}

// Content is a sequence of parts attributed to a role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is either text or inline binary data, never both.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob carries base64-encoded media with its MIME type.
type Blob struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// RealtimeInputMessage streams microphone audio and video frames to the
// model while the session is live.
type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks,omitempty"`
}

// ServerMessage is one inbound frame. Exactly one field is set.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// SetupComplete acknowledges the setup message. The session is live
// once it arrives.
type SetupComplete struct{}

// ServerContent carries model output. ModelTurn parts hold synthesized
// speech as inline s16le PCM at 24 kHz.
type ServerContent struct {
	ModelTurn    *Content `json:"modelTurn,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
}

// GoAway warns that the server will close the connection shortly.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}
