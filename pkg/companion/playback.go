package companion

import (
	"sync"
	"time"
)

// OutputClock is the monotonic position of the audio output timeline.
type OutputClock interface {
	Now() time.Duration
}

// PlaybackSink receives scheduled segments. PlayAt must not block the
// caller for the duration of the segment; sinks queue and return.
type PlaybackSink interface {
	PlayAt(segment PlaybackSegment)
}

// PlaybackSegment is one decoded block of server speech pinned to a
// position on the output clock.
type PlaybackSegment struct {
	Samples  []float32
	Rate     int
	Start    time.Duration
	Duration time.Duration
}

// Scheduler lines up server audio segments back to back on the output
// clock. Segments arriving while audio is still queued start exactly
// when the previous segment ends; segments arriving after a silence
// start immediately. Nothing is ever dropped or reordered.
type Scheduler struct {
	clock OutputClock
	sink  PlaybackSink
	rate  int

	mu       sync.Mutex
	nextFree time.Duration
}

// NewScheduler returns a scheduler for the given clock and sink.
// sampleRate is the rate of incoming PCM; zero means OutputSampleRate.
func NewScheduler(clock OutputClock, sink PlaybackSink, sampleRate int) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = OutputSampleRate
	}
	return &Scheduler{clock: clock, sink: sink, rate: sampleRate}
}

// Schedule decodes one chunk of s16le PCM, assigns it the later of the
// current clock position and the end of the previously scheduled
// segment, and hands it to the sink. It returns the scheduled segment.
func (s *Scheduler) Schedule(raw []byte) PlaybackSegment {
	samples := PCMToFloat(raw)
	dur := time.Duration(len(samples)) * time.Second / time.Duration(s.rate)

	s.mu.Lock()
	start := s.clock.Now()
	if s.nextFree > start {
		start = s.nextFree
	}
	s.nextFree = start + dur
	s.mu.Unlock()

	seg := PlaybackSegment{Samples: samples, Rate: s.rate, Start: start, Duration: dur}
	if s.sink != nil {
		s.sink.PlayAt(seg)
	}
	return seg
}

// NextFree returns the end position of the last scheduled segment.
func (s *Scheduler) NextFree() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFree
}

// Reset clears the cursor. Called when a new connection goes live so
// stale positions from a previous connection do not delay playback.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.nextFree = 0
	s.mu.Unlock()
}
