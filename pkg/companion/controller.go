package companion

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Speaking detection parameters. The meter subsamples each frame and
// throttles UI updates to about 10 Hz.
const (
	DefaultSpeakingThreshold  = 0.02
	DefaultSpeakingStride     = 16
	DefaultMeterInterval      = 100 * time.Millisecond
	DefaultRemoteSpeakingHold = time.Second
)

// MicStream delivers captured audio frames at the hardware cadence.
type MicStream interface {
	SampleRate() int
	Frames() <-chan AudioFrame
}

// CaptureSession owns the input devices acquired for one session
// attempt. Close releases them; it must be safe to call once per
// acquisition.
type CaptureSession interface {
	Mic() MicStream
	// Camera returns nil when video was not requested or was refused.
	Camera() FrameSource
	Close()
}

// DeviceProvider acquires capture hardware. Implementations return an
// error of KindPermissionDenied when microphone access is refused, and
// degrade to an audio-only session (nil Camera) when only the camera
// is refused.
type DeviceProvider interface {
	Acquire(ctx context.Context, wantVideo bool) (CaptureSession, error)
}

// EventConn is the transport surface the controller drives. Dial
// returns one per connection attempt.
type EventConn interface {
	Events() <-chan ServerEvent
	SendAudio(EncodedAudioPacket) error
	SendImage(VideoSnapshot) error
	Close() error
}

// DialFunc opens one live connection for the given session
// configuration. The connection must already be acknowledged by the
// server when DialFunc returns.
type DialFunc func(ctx context.Context, cfg SessionConfig) (EventConn, error)

// SessionConfig is immutable for the lifetime of one session. Changing
// the persona or voice requires a stop and a fresh start.
type SessionConfig struct {
	DisplayName   string
	SystemPersona string
	VoiceID       string
	WantsVideo    bool
}

// State is one observable snapshot of the session. A new snapshot is
// published on every change.
type State struct {
	Connection     ConnectionState
	RemoteSpeaking bool
	LocalSpeaking  bool
	CameraEnabled  bool
	// LastError is the short reason string for the most recent failure,
	// empty while the session is healthy.
	LastError string
}

// ControllerOptions configures a Controller. Devices and Dial are
// required; everything else has defaults.
type ControllerOptions struct {
	Devices   DeviceProvider
	Dial      DialFunc
	Scheduler *Scheduler
	Logger    *slog.Logger

	// Preflight runs before any device acquisition. A returned error of
	// KindConfigurationMissing keeps the session in Idle.
	Preflight func() error

	SpeakingThreshold  float64
	SpeakingStride     int
	MeterInterval      time.Duration
	FrameInterval      time.Duration
	RemoteSpeakingHold time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Controller runs the live companion session: it acquires devices,
// dials the endpoint, pumps microphone audio and video frames out,
// schedules inbound speech for playback and walks the connection state
// machine with bounded reconnects.
type Controller struct {
	opts ControllerOptions
	log  *slog.Logger

	mu     sync.Mutex
	state  State
	active bool
	cancel context.CancelFunc
	done   chan struct{}

	muted   atomic.Bool
	updates chan State

	remoteMu    sync.Mutex
	remoteTimer *time.Timer
}

// NewController returns an idle controller. Call Start to begin a
// session.
func NewController(opts ControllerOptions) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SpeakingThreshold <= 0 {
		opts.SpeakingThreshold = DefaultSpeakingThreshold
	}
	if opts.SpeakingStride <= 0 {
		opts.SpeakingStride = DefaultSpeakingStride
	}
	if opts.MeterInterval <= 0 {
		opts.MeterInterval = DefaultMeterInterval
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = FrameInterval
	}
	if opts.RemoteSpeakingHold <= 0 {
		opts.RemoteSpeakingHold = DefaultRemoteSpeakingHold
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return &Controller{
		opts:    opts,
		log:     opts.Logger,
		state:   State{Connection: StateIdle},
		updates: make(chan State, 64),
	}
}

// Updates yields a snapshot after every state change. The channel is
// buffered; if the consumer falls far behind, intermediate snapshots
// are dropped in favor of newer ones.
func (c *Controller) Updates() <-chan State {
	return c.updates
}

// State returns the latest snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetMuted toggles microphone transmission. While muted, captured audio
// still drives the local speaking meter but nothing leaves the device.
func (c *Controller) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// Muted reports whether transmission is suppressed.
func (c *Controller) Muted() bool {
	return c.muted.Load()
}

// Start begins the acquire-then-connect sequence. Calling Start while a
// session is active is a no-op.
func (c *Controller) Start(cfg SessionConfig) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	if c.opts.Preflight != nil {
		if err := c.opts.Preflight(); err != nil {
			cerr := Classify(err)
			c.state = State{Connection: StateIdle, LastError: cerr.Kind.Reason()}
			snapshot := c.state
			c.mu.Unlock()
			c.publish(snapshot)
			c.log.Warn("session preflight failed", "error", err)
			return
		}
	}
	c.active = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()
	go c.run(ctx, cfg, done)
}

// Stop tears down the session unconditionally and waits for the run
// loop to exit. Safe to call at any time, including from Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (c *Controller) run(ctx context.Context, cfg SessionConfig, done chan struct{}) {
	defer close(done)
	budget := NewRetryBudget(c.opts.MaxRetries, c.opts.RetryBaseDelay)
	for {
		err := c.runOnce(ctx, cfg, budget)
		if err == nil || ctx.Err() != nil {
			c.finish(StateClosed, "")
			return
		}
		cerr := Classify(err)
		if cerr.Retryable() {
			delay, ok := budget.Next()
			if !ok {
				c.log.Warn("reconnect budget exhausted", "error", err)
				c.finish(StateFailed, cerr.Kind.Reason())
				return
			}
			c.log.Info("session dropped, reconnecting",
				"attempt", budget.Used(), "delay", delay, "error", err)
			c.setConnection(StateRetrying, "")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.finish(StateClosed, "")
				return
			case <-timer.C:
			}
			continue
		}
		c.log.Warn("session failed", "kind", cerr.Kind, "error", err)
		c.finish(StateFailed, cerr.Kind.Reason())
		return
	}
}

// runOnce drives a single connection attempt from device acquisition
// through the live event loop. It returns nil on a clean end (local
// stop or server close) and an error otherwise. All resources for the
// attempt are released before it returns.
func (c *Controller) runOnce(ctx context.Context, cfg SessionConfig, budget *RetryBudget) error {
	c.setConnection(StateAcquiring, "")
	capture, err := c.opts.Devices.Acquire(ctx, cfg.WantsVideo)
	if err != nil {
		return err
	}
	defer capture.Close()
	c.setCamera(capture.Camera() != nil)

	c.setConnection(StateConnecting, "")
	conn, err := c.opts.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	budget.Reset()
	if c.opts.Scheduler != nil {
		c.opts.Scheduler.Reset()
	}
	c.setConnection(StateLive, "")

	tapCtx, cancelTaps := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.audioTap(tapCtx, capture.Mic(), conn)
	}()
	var sampler *FrameSampler
	if cam := capture.Camera(); cam != nil {
		sampler = NewFrameSampler(cam, c.opts.FrameInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.videoTap(tapCtx, sampler, conn)
		}()
	}
	defer func() {
		if sampler != nil {
			sampler.Stop()
		}
		cancelTaps()
		wg.Wait()
		c.setSpeaking(false, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-conn.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return NewNetworkError("connection closed unexpectedly", nil)
			}
			switch e := event.(type) {
			case OpenedEvent:
				// Live state already published above.
			case AudioChunkEvent:
				if c.opts.Scheduler != nil {
					c.opts.Scheduler.Schedule(e.Data)
				}
				c.markRemoteSpeaking()
			case ClosedEvent:
				c.log.Info("server closed the session", "reason", e.Reason)
				return nil
			case ErrorEvent:
				return e.Err
			}
		}
	}
}

// audioTap pumps microphone frames: every frame feeds the speaking
// meter, and unmuted frames are downsampled, encoded and transmitted.
func (c *Controller) audioTap(ctx context.Context, mic MicStream, conn EventConn) {
	var lastMeter time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-mic.Frames():
			if !ok {
				return
			}
			if now := time.Now(); now.Sub(lastMeter) >= c.opts.MeterInterval {
				rms := RMSEnergy(frame.Samples, c.opts.SpeakingStride)
				c.setLocalSpeaking(rms > c.opts.SpeakingThreshold)
				lastMeter = now
			}
			if c.muted.Load() {
				continue
			}
			samples := Resample(frame.Samples, frame.Rate, InputSampleRate)
			if len(samples) == 0 {
				continue
			}
			if err := conn.SendAudio(EncodePCM(samples)); err != nil {
				c.log.Debug("mic transmit stopped", "error", err)
				return
			}
		}
	}
}

func (c *Controller) videoTap(ctx context.Context, sampler *FrameSampler, conn EventConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sampler.Snapshots():
			if !ok {
				return
			}
			if err := conn.SendImage(snap); err != nil {
				c.log.Debug("frame transmit stopped", "error", err)
				return
			}
		}
	}
}

// markRemoteSpeaking turns the remote indicator on and arms a decay
// timer; the indicator drops once no audio has arrived for the hold
// period.
func (c *Controller) markRemoteSpeaking() {
	c.setRemoteSpeaking(true)
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
	}
	c.remoteTimer = time.AfterFunc(c.opts.RemoteSpeakingHold, func() {
		c.setRemoteSpeaking(false)
	})
}

func (c *Controller) finish(state ConnectionState, reason string) {
	c.remoteMu.Lock()
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
		c.remoteTimer = nil
	}
	c.remoteMu.Unlock()

	c.mu.Lock()
	c.active = false
	c.cancel = nil
	c.state = State{Connection: state, LastError: reason}
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
}

func (c *Controller) setConnection(state ConnectionState, reason string) {
	c.mu.Lock()
	c.state.Connection = state
	c.state.LastError = reason
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
}

func (c *Controller) setCamera(enabled bool) {
	c.mu.Lock()
	if c.state.CameraEnabled == enabled {
		c.mu.Unlock()
		return
	}
	c.state.CameraEnabled = enabled
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
}

func (c *Controller) setLocalSpeaking(speaking bool) {
	c.mu.Lock()
	if c.state.LocalSpeaking == speaking {
		c.mu.Unlock()
		return
	}
	c.state.LocalSpeaking = speaking
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
}

func (c *Controller) setRemoteSpeaking(speaking bool) {
	c.mu.Lock()
	if c.state.RemoteSpeaking == speaking {
		c.mu.Unlock()
		return
	}
	c.state.RemoteSpeaking = speaking
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
}

func (c *Controller) setSpeaking(local, remote bool) {
	c.mu.Lock()
	if c.state.LocalSpeaking == local && c.state.RemoteSpeaking == remote {
		c.mu.Unlock()
		return
	}
	c.state.LocalSpeaking = local
	c.state.RemoteSpeaking = remote
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
}

// publish never blocks the session loop. When the buffer is full the
// oldest snapshot is evicted so the consumer always converges on the
// newest state.
func (c *Controller) publish(snapshot State) {
	for {
		select {
		case c.updates <- snapshot:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}
