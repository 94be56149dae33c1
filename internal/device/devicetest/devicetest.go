// Package devicetest provides recording fakes of the device capabilities so
// driver tests can assert on the exact sequence of captures, lookups, input
// events and settle delays a driver performs.
package devicetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
)

// Action kinds recorded by the fakes.
const (
	KindGrab      = "grab"
	KindFindImage = "find_image"
	KindFindText  = "find_text"
	KindClick     = "click"
	KindTap       = "tap"
	KindSwipe     = "swipe"
	KindPress     = "press"
	KindType      = "type"
	KindSleep     = "sleep"
)

// Action is one recorded interaction.
type Action struct {
	Kind   string
	Target string
	Point  schemas.Point
	Found  bool
	Delay  time.Duration
}

func (a Action) String() string {
	switch a.Kind {
	case KindSleep:
		return fmt.Sprintf("sleep %v", a.Delay)
	case KindClick, KindTap:
		return fmt.Sprintf("%s %s@(%d,%d)", a.Kind, a.Target, a.Point.X, a.Point.Y)
	case KindFindImage, KindFindText:
		return fmt.Sprintf("%s %s found=%t", a.Kind, a.Target, a.Found)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Target)
	}
}

// Frame describes what is visible on screen at one moment.
type Frame struct {
	Images map[schemas.Signature]schemas.Rectangle
	Texts  map[string]schemas.Rectangle
}

// Clone returns a deep copy so tests can derive frames from one another.
func (f Frame) Clone() Frame {
	cp := Frame{
		Images: make(map[schemas.Signature]schemas.Rectangle, len(f.Images)),
		Texts:  make(map[string]schemas.Rectangle, len(f.Texts)),
	}
	for k, v := range f.Images {
		cp.Images[k] = v
	}
	for k, v := range f.Texts {
		cp.Texts[k] = v
	}
	return cp
}

// Box returns a 20x20 rectangle centred on (x, y).
func Box(x, y int) schemas.Rectangle {
	return schemas.Rectangle{P1: schemas.Point{X: x - 10, Y: y - 10}, P2: schemas.Point{X: x + 10, Y: y + 10}}
}

// Device bundles the fakes for a single device around one shared action log.
type Device struct {
	mu      sync.Mutex
	actions []Action
	grabs   int

	// Render produces the frame for the n-th grab (1-based). A nil frame
	// simulates a device with no display output.
	Render func(grab int) *Frame
	// OnClick, OnTap, OnSwipe and OnPress let tests mutate screen state in
	// response to input. They run without the recorder lock held.
	OnClick func(p schemas.Point)
	OnTap   func(p schemas.Point)
	OnSwipe func(s schemas.Swipe)
	OnPress func(id string)
	// InputErr, when set, is returned by every input method after recording.
	InputErr error
	// Labels maps points back to names for readable click logs.
	Labels map[schemas.Point]string
}

// New returns a device that always renders frame.
func New(frame *Frame) *Device {
	return &Device{Render: func(int) *Frame { return frame }}
}

func (d *Device) record(a Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, a)
}

func (d *Device) label(p schemas.Point) string {
	if name, ok := d.Labels[p]; ok {
		return name
	}
	return ""
}

// Actions returns a copy of the action log.
func (d *Device) Actions() []Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Action, len(d.actions))
	copy(out, d.actions)
	return out
}

// Filter returns the recorded actions of the given kinds, in order.
func (d *Device) Filter(kinds ...string) []Action {
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Action
	for _, a := range d.Actions() {
		if want[a.Kind] {
			out = append(out, a)
		}
	}
	return out
}

// Count returns how many actions of kind were recorded.
func (d *Device) Count(kind string) int { return len(d.Filter(kind)) }

// Targets returns the Target of every action of kind, in order.
func (d *Device) Targets(kind string) []string {
	var out []string
	for _, a := range d.Filter(kind) {
		out = append(out, a.Target)
	}
	return out
}

// Reset clears the action log and grab counter.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = nil
	d.grabs = 0
}

// Grab implements device.Display.
func (d *Device) Grab(ctx context.Context) (device.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.grabs++
	n := d.grabs
	d.mu.Unlock()

	var frame *Frame
	if d.Render != nil {
		frame = d.Render(n)
	}
	d.record(Action{Kind: KindGrab, Found: frame != nil})
	if frame == nil {
		return nil, nil
	}
	return &snapshot{dev: d, frame: frame.Clone()}, nil
}

type snapshot struct {
	dev   *Device
	frame Frame
}

func (s *snapshot) FindImage(sig schemas.Signature, region *schemas.Rectangle) (schemas.Rectangle, bool) {
	r, ok := s.frame.Images[sig]
	if ok && region != nil && !region.Contains(r.Center()) {
		ok = false
	}
	s.dev.record(Action{Kind: KindFindImage, Target: string(sig), Found: ok})
	return r, ok
}

func (s *snapshot) FindText(text string, region *schemas.Rectangle) (schemas.Rectangle, bool) {
	r, ok := s.frame.Texts[text]
	if ok && region != nil && !region.Contains(r.Center()) {
		ok = false
	}
	s.dev.record(Action{Kind: KindFindText, Target: text, Found: ok})
	return r, ok
}

// Click implements device.Mouse.
func (d *Device) Click(ctx context.Context, p schemas.Point) error {
	d.record(Action{Kind: KindClick, Target: d.label(p), Point: p})
	if d.InputErr != nil {
		return d.InputErr
	}
	if d.OnClick != nil {
		d.OnClick(p)
	}
	return ctx.Err()
}

// Tap implements device.Touch.
func (d *Device) Tap(ctx context.Context, p schemas.Point) error {
	d.record(Action{Kind: KindTap, Target: d.label(p), Point: p})
	if d.InputErr != nil {
		return d.InputErr
	}
	if d.OnTap != nil {
		d.OnTap(p)
	}
	return ctx.Err()
}

// Swipe implements device.Touch.
func (d *Device) Swipe(ctx context.Context, s schemas.Swipe) error {
	d.record(Action{Kind: KindSwipe, Point: s.To})
	if d.InputErr != nil {
		return d.InputErr
	}
	if d.OnSwipe != nil {
		d.OnSwipe(s)
	}
	return ctx.Err()
}

// Type implements device.Keyboard.
func (d *Device) Type(ctx context.Context, text string) error {
	d.record(Action{Kind: KindType, Target: text})
	if d.InputErr != nil {
		return d.InputErr
	}
	return ctx.Err()
}

// Sleep implements device.Clock without blocking.
func (d *Device) Sleep(ctx context.Context, dur time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.record(Action{Kind: KindSleep, Delay: dur})
	return nil
}

// Buttons returns recording buttons for each id.
func (d *Device) Buttons(ids ...string) device.Buttons {
	out := make(device.Buttons, len(ids))
	for _, id := range ids {
		out[id] = &button{dev: d, id: id}
	}
	return out
}

type button struct {
	dev *Device
	id  string
}

func (b *button) Press(ctx context.Context) error {
	b.dev.record(Action{Kind: KindPress, Target: b.id})
	if b.dev.InputErr != nil {
		return b.dev.InputErr
	}
	if b.dev.OnPress != nil {
		b.dev.OnPress(b.id)
	}
	return ctx.Err()
}
