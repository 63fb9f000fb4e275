// Package companion implements the live companion session engine:
// a bidirectional audio/video streaming client that captures the
// microphone, downsamples and encodes it for the Gemini Live endpoint,
// samples camera frames, plays back synthesized speech gap-free and
// drives the session state machine with bounded reconnects.
package companion
