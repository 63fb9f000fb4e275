// Package capture binds the companion engine to real devices:
// microphone input through malgo and speaker output through oto.
// Camera frames are injected by the caller; platform camera bindings
// are out of scope for this package.
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/afrosatoshi1/flux-companion/pkg/companion"
)

// CaptureSampleRate is the rate microphone frames are delivered at.
// The engine downsamples to 16 kHz before transmission.
const CaptureSampleRate = 48000

// Provider acquires capture devices. It implements
// companion.DeviceProvider.
type Provider struct {
	ctx    *malgo.AllocatedContext
	camera companion.FrameSource
	log    *slog.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithCamera attaches a camera frame source. Without one, sessions
// that want video degrade to audio-only.
func WithCamera(src companion.FrameSource) ProviderOption {
	return func(p *Provider) { p.camera = src }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) ProviderOption {
	return func(p *Provider) { p.log = log }
}

// NewProvider initializes the audio backend. Call Close when no more
// sessions will be started.
func NewProvider(opts ...ProviderOption) (*Provider, error) {
	p := &Provider{log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	p.ctx = mctx
	return p, nil
}

// Close releases the audio backend.
func (p *Provider) Close() {
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
	}
}

// Acquire opens the microphone and, when requested and available, the
// camera. A refused or absent microphone is a permission failure; a
// missing camera only drops video.
func (p *Provider) Acquire(ctx context.Context, wantVideo bool) (companion.CaptureSession, error) {
	mic, err := newMicStream(p.ctx.Context, CaptureSampleRate)
	if err != nil {
		return nil, companion.NewPermissionError("microphone unavailable", err)
	}
	s := &session{mic: mic}
	if wantVideo {
		if p.camera != nil {
			s.camera = p.camera
		} else {
			p.log.Info("no camera available, continuing audio-only")
		}
	}
	return s, nil
}

type session struct {
	mic    *micStream
	camera companion.FrameSource
}

func (s *session) Mic() companion.MicStream      { return s.mic }
func (s *session) Camera() companion.FrameSource { return s.camera }
func (s *session) Close()                        { s.mic.Close() }

// micStream captures mono float32 audio in 20ms periods.
type micStream struct {
	device    *malgo.Device
	rate      int
	frames    chan companion.AudioFrame
	closeOnce sync.Once
}

func newMicStream(mctx malgo.Context, rate int) (*micStream, error) {
	m := &micStream{rate: rate, frames: make(chan companion.AudioFrame, 8)}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(rate)
	cfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			frame := companion.AudioFrame{
				Samples:  bytesToFloat32(input),
				Rate:     rate,
				Captured: time.Now(),
			}
			// The capture callback must never block. A full channel
			// means the consumer stalled; that frame is lost.
			select {
			case m.frames <- frame:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(mctx, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return m, nil
}

func (m *micStream) SampleRate() int { return m.rate }

func (m *micStream) Frames() <-chan companion.AudioFrame { return m.frames }

func (m *micStream) Close() {
	m.closeOnce.Do(func() {
		_ = m.device.Stop()
		m.device.Uninit()
		close(m.frames)
	})
}

func bytesToFloat32(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
