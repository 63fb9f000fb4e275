package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/afrosatoshi1/flux-companion/pkg/companion"
)

// Speaker plays scheduled segments on the default output device. It
// implements both companion.OutputClock and companion.PlaybackSink, so
// a single Speaker backs the playback scheduler completely.
//
// The output clock is wall time since the speaker was created. oto
// pulls audio from an internal byte buffer; when the buffer runs dry
// the speaker feeds silence, which keeps the clock honest across gaps.
type Speaker struct {
	otoCtx *oto.Context
	epoch  time.Time
	queue  chan companion.PlaybackSegment

	mu      sync.Mutex
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool

	closeOnce sync.Once
}

// NewSpeaker opens the default output device at 24 kHz mono s16le.
func NewSpeaker() (*Speaker, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   companion.OutputSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &Speaker{
		otoCtx: otoCtx,
		epoch:  time.Now(),
		queue:  make(chan companion.PlaybackSegment, 64),
	}
	go s.pump()
	return s, nil
}

// Now implements companion.OutputClock.
func (s *Speaker) Now() time.Duration {
	return time.Since(s.epoch)
}

// PlayAt implements companion.PlaybackSink. Segments arrive in start
// order from the scheduler; the pump honors each start time.
func (s *Speaker) PlayAt(seg companion.PlaybackSegment) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.queue <- seg
}

func (s *Speaker) pump() {
	for seg := range s.queue {
		if wait := seg.Start - s.Now(); wait > 0 {
			time.Sleep(wait)
		}
		s.write(companion.FloatToPCM(seg.Samples))
	}
}

func (s *Speaker) write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
}

// Read implements io.Reader for oto. Silence is returned when no audio
// is buffered so playback never stalls between segments.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Close stops playback and drops any queued audio.
func (s *Speaker) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.buf = nil
		player := s.player
		s.mu.Unlock()
		close(s.queue)
		if player != nil {
			player.Close()
		}
	})
}
