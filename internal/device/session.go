// internal/device/session.go
package device

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/internal/resources"
)

// Session binds the capabilities of one physical or virtual device under test
// (e.g. "HeadUnit", "Phone") to its resource table. Sessions never share
// mutable state; a scenario creates one per device and closes it at the end.
type Session struct {
	Name      string
	Display   Display
	Mouse     Mouse
	Touch     Touch
	Keyboard  Keyboard
	Buttons   Buttons
	Resources *resources.Table
	Clock     Clock
	Logger    *zap.Logger

	closers []io.Closer
}

// SessionOption customises a Session at construction.
type SessionOption func(*Session)

// WithMouse attaches a pointer capability.
func WithMouse(m Mouse) SessionOption { return func(s *Session) { s.Mouse = m } }

// WithTouch attaches a touch capability.
func WithTouch(t Touch) SessionOption { return func(s *Session) { s.Touch = t } }

// WithKeyboard attaches a physical keyboard.
func WithKeyboard(k Keyboard) SessionOption { return func(s *Session) { s.Keyboard = k } }

// WithButtons attaches hardware buttons.
func WithButtons(b Buttons) SessionOption { return func(s *Session) { s.Buttons = b } }

// WithClock overrides the wall clock, mainly for tests.
func WithClock(c Clock) SessionOption { return func(s *Session) { s.Clock = c } }

// WithLogger sets the session logger. The session name is attached as a field.
func WithLogger(l *zap.Logger) SessionOption { return func(s *Session) { s.Logger = l } }

// WithCloser registers a backend resource released by Close.
func WithCloser(c io.Closer) SessionOption {
	return func(s *Session) { s.closers = append(s.closers, c) }
}

// NewSession creates a session for the named device. A display and a resource
// table are mandatory; everything else depends on the flows the device runs.
func NewSession(name string, display Display, res *resources.Table, opts ...SessionOption) (*Session, error) {
	if display == nil {
		return nil, fmt.Errorf("device %q: %w: display", name, ErrMissingCapability)
	}
	if res == nil {
		return nil, fmt.Errorf("device %q: resource table is nil", name)
	}
	s := &Session{
		Name:      name,
		Display:   display,
		Resources: res,
		Clock:     RealClock{},
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Logger = s.Logger.With(zap.String("device", name))
	return s, nil
}

// Button returns the named button or an ErrMissingCapability error.
func (s *Session) Button(id string) (Button, error) {
	b, ok := s.Buttons[id]
	if !ok || b == nil {
		return nil, fmt.Errorf("device %q: %w: button %q", s.Name, ErrMissingCapability, id)
	}
	return b, nil
}

// Close releases backend resources in reverse registration order and returns
// the first error encountered.
func (s *Session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
