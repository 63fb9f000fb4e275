package companion

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Frame snapshot parameters. Frames are shrunk hard before transmission;
// the model only needs enough pixels to describe the scene.
const (
	FrameInterval    = time.Second
	frameWidth       = 320
	frameHeight      = 240
	frameJPEGQuality = 50
)

// VideoSnapshot is one downscaled JPEG frame ready for transmission.
type VideoSnapshot struct {
	JPEG     []byte
	Captured time.Time
}

// FrameSource supplies raw frames from a live video input. Frame
// returns ok=false when no frame is ready; the sampler skips that tick.
type FrameSource interface {
	Frame() (image.Image, bool)
}

// FrameSampler snapshots the video source once per interval. Ticks are
// never queued: a slow consumer sees fewer snapshots, not stale ones.
type FrameSampler struct {
	src      FrameSource
	interval time.Duration
	out      chan VideoSnapshot
	done     chan struct{}
	stopOnce sync.Once
}

// NewFrameSampler starts sampling immediately. A non-positive interval
// uses FrameInterval.
func NewFrameSampler(src FrameSource, interval time.Duration) *FrameSampler {
	if interval <= 0 {
		interval = FrameInterval
	}
	s := &FrameSampler{
		src:      src,
		interval: interval,
		out:      make(chan VideoSnapshot),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Snapshots yields one snapshot per interval while the sampler runs.
// The channel closes after Stop.
func (s *FrameSampler) Snapshots() <-chan VideoSnapshot {
	return s.out
}

// Stop halts sampling permanently. No further snapshots are emitted
// once Stop returns, even for ticks already elapsed.
func (s *FrameSampler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *FrameSampler) loop() {
	defer close(s.out)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			frame, ok := s.src.Frame()
			if !ok {
				continue
			}
			data, err := EncodeSnapshot(frame)
			if err != nil {
				continue
			}
			select {
			case s.out <- VideoSnapshot{JPEG: data, Captured: time.Now()}:
			case <-s.done:
				return
			}
		}
	}
}

// EncodeSnapshot downscales a frame to 320x240 and JPEG-encodes it at
// quality 50.
func EncodeSnapshot(frame image.Image) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), xdraw.Over, nil)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
