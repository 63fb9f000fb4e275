package companion

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Duration
}

func (c *fakeClock) Now() time.Duration { return c.now }

type recordingSink struct {
	mu       sync.Mutex
	segments []PlaybackSegment
}

func (s *recordingSink) PlayAt(seg PlaybackSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
}

func (s *recordingSink) all() []PlaybackSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlaybackSegment(nil), s.segments...)
}

// pcmOfDuration builds silent s16le PCM lasting d at the output rate.
func pcmOfDuration(d time.Duration) []byte {
	samples := int(d * OutputSampleRate / time.Second)
	return make([]byte, samples*2)
}

func TestSchedulerBackToBack(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink, OutputSampleRate)

	// Three 1-second segments arriving at once start at 0, 1 and 2
	// seconds with no overlap.
	for i := 0; i < 3; i++ {
		s.Schedule(pcmOfDuration(time.Second))
	}

	segs := sink.all()
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, want := range []time.Duration{0, time.Second, 2 * time.Second} {
		if segs[i].Start != want {
			t.Errorf("segment %d: expected start %v, got %v", i, want, segs[i].Start)
		}
		if segs[i].Duration != time.Second {
			t.Errorf("segment %d: expected duration 1s, got %v", i, segs[i].Duration)
		}
	}
	if got := s.NextFree(); got != 3*time.Second {
		t.Errorf("expected cursor at 3s, got %v", got)
	}
}

func TestSchedulerRespectsLateArrival(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink, OutputSampleRate)

	s.Schedule(pcmOfDuration(time.Second)) // ends at 1s

	// The next chunk arrives after a silence; it plays at the clock
	// position, not at the old cursor.
	clock.now = 5 * time.Second
	seg := s.Schedule(pcmOfDuration(time.Second))
	if seg.Start != 5*time.Second {
		t.Errorf("expected start 5s, got %v", seg.Start)
	}
	if got := s.NextFree(); got != 6*time.Second {
		t.Errorf("expected cursor at 6s, got %v", got)
	}
}

func TestSchedulerNeverSchedulesInThePast(t *testing.T) {
	clock := &fakeClock{now: 2 * time.Second}
	s := NewScheduler(clock, nil, OutputSampleRate)

	seg := s.Schedule(pcmOfDuration(500 * time.Millisecond))
	if seg.Start < clock.now {
		t.Errorf("segment scheduled in the past: start %v, clock %v", seg.Start, clock.now)
	}
}

func TestSchedulerReset(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(clock, nil, OutputSampleRate)
	s.Schedule(pcmOfDuration(time.Second))
	s.Reset()
	if got := s.NextFree(); got != 0 {
		t.Errorf("expected cursor at 0 after reset, got %v", got)
	}
}

func TestSchedulerDecodesSamples(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink, OutputSampleRate)

	raw := FloatToPCM([]float32{0.5, -0.5})
	seg := s.Schedule(raw)
	if len(seg.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(seg.Samples))
	}
	if seg.Rate != OutputSampleRate {
		t.Errorf("expected rate %d, got %d", OutputSampleRate, seg.Rate)
	}
}
