// Package session holds the explicit per-app session context: the
// current media stream, the voice catalog, and camera lifecycle. No
// ambient globals; designated operations mutate designated fields.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/photolingo/photolingo/internal/common"
	"github.com/photolingo/photolingo/internal/speech"
)

// Sentinel errors a MediaSource implementation returns; the session
// maps them to actionable capture messages.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceBusy       = errors.New("camera device busy")
	ErrNotSupported     = errors.New("media capture not supported")
	ErrNoDevice         = errors.New("no camera device")
)

// Constraint expresses a camera preference. Ideal constraints may be
// relaxed by the source; strict ones may not.
type Constraint struct {
	Facing string // "environment", "user", or "" for any
	Ideal  bool
}

// constraintLadder is tried in order until one acquisition succeeds:
// rear camera if possible, then front, then anything.
var constraintLadder = []Constraint{
	{Facing: "environment", Ideal: true},
	{Facing: "environment"},
	{Facing: "user", Ideal: true},
	{},
}

// Stream is a live capture stream. Frame returns the current frame as
// an encoded image read; Close releases the device.
type Stream interface {
	Frame() (io.Reader, error)
	Close() error
}

// MediaSource is the platform capture collaborator.
type MediaSource interface {
	Acquire(ctx context.Context, c Constraint) (Stream, error)
}

// Session is created once at app start and passed to whoever needs
// the camera or the voice catalog.
type Session struct {
	mu     sync.Mutex
	stream Stream
	voices *speech.Catalog
	logger *slog.Logger
}

func New(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{voices: speech.NewCatalog(), logger: logger}
}

// Voices returns the session's voice catalog.
func (s *Session) Voices() *speech.Catalog { return s.voices }

// OpenCamera walks the constraint ladder until a stream is acquired,
// replacing any existing stream. The returned error distinguishes
// permission-denied from device-busy from unsupported, each with a
// message a user can act on.
func (s *Session) OpenCamera(ctx context.Context, src MediaSource) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			s.logger.Warn("session.camera.close_error", "error", err)
		}
		s.stream = nil
	}

	var lastErr error
	for _, c := range constraintLadder {
		stream, err := src.Acquire(ctx, c)
		if err == nil {
			s.stream = stream
			s.logger.Info("session.camera.opened", "facing", c.Facing)
			return stream, nil
		}
		lastErr = err
	}
	return nil, classifyCaptureError(lastErr)
}

// Stream returns the current stream, or nil when the camera is closed.
func (s *Session) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Background releases the camera when the page is backgrounded. This
// is a resource release, not a cancellation: any analysis already in
// flight keeps running. Idempotent.
func (s *Session) Background() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.logger.Warn("session.camera.close_error", "error", err)
	}
	s.stream = nil
	s.logger.Info("session.camera.released")
}

func classifyCaptureError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return common.NewCaptureError("camera permission required: allow camera access in site settings", err)
	case errors.Is(err, ErrDeviceBusy):
		return common.NewCaptureError("camera may be in use by another app: close it and retry", err)
	case errors.Is(err, ErrNotSupported):
		return common.NewCaptureError("media capture is not supported here: check HTTPS and browser settings", err)
	case errors.Is(err, ErrNoDevice):
		return common.NewCaptureError("no camera was found on this device", err)
	default:
		return common.NewCaptureError("could not start the camera", err)
	}
}
