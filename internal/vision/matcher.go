// Package vision is the in-process reference implementation of device.Snapshot.
// It locates image templates on a captured frame with perceptual hashing and
// delegates text lookups to a pluggable TextLocator.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"math"
	"os"
	"sync"

	"github.com/corona10/goimagehash"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

// DefaultMaxDistance is the largest perceptual hash Hamming distance (out of
// 64 bits) still accepted as a match.
const DefaultMaxDistance = 10

// TextLocator finds rendered text on a frame. Backends that can answer text
// queries without OCR (e.g. from a DOM) implement it.
type TextLocator interface {
	LocateText(img image.Image, text string, region *schemas.Rectangle) (schemas.Rectangle, bool)
}

type template struct {
	img  *image.RGBA
	hash *goimagehash.ImageHash
}

// Matcher holds the decoded templates shared by every snapshot of a device.
// It is safe for concurrent use.
type Matcher struct {
	mu          sync.Mutex
	templates   map[schemas.Signature]*template
	maxDistance int
	logger      *zap.Logger
}

// Option customises a Matcher.
type Option func(*Matcher)

// WithMaxDistance sets the match threshold.
func WithMaxDistance(d int) Option { return func(m *Matcher) { m.maxDistance = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Matcher) { m.logger = l } }

// NewMatcher creates an empty matcher. Templates are loaded lazily.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		templates:   make(map[schemas.Signature]*template),
		maxDistance: DefaultMaxDistance,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("vision")
	return m
}

// Preload decodes and hashes the given templates, failing on the first one
// that cannot be read.
func (m *Matcher) Preload(sigs ...schemas.Signature) error {
	for _, sig := range sigs {
		if _, err := m.template(sig); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matcher) template(sig schemas.Signature) (*template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.templates[sig]; ok {
		return t, nil
	}
	data, err := os.ReadFile(string(sig))
	if err != nil {
		return nil, fmt.Errorf("vision: reading template: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vision: decoding template %s: %w", sig, err)
	}
	rgba := crop(img, img.Bounds())
	hash, err := goimagehash.PerceptionHash(rgba)
	if err != nil {
		return nil, fmt.Errorf("vision: hashing template %s: %w", sig, err)
	}
	t := &template{img: rgba, hash: hash}
	m.templates[sig] = t
	return t, nil
}

// Snapshot wraps a captured frame. text may be nil, in which case every text
// lookup misses.
func (m *Matcher) Snapshot(img image.Image, text TextLocator) *Snapshot {
	return &Snapshot{m: m, img: img, text: text}
}

// Decode builds a snapshot from an encoded PNG or JPEG frame.
func (m *Matcher) Decode(data []byte, text TextLocator) (*Snapshot, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vision: decoding frame: %w", err)
	}
	return m.Snapshot(img, text), nil
}

// Snapshot is an immutable captured frame.
type Snapshot struct {
	m    *Matcher
	img  image.Image
	text TextLocator
}

// Image returns the captured frame.
func (s *Snapshot) Image() image.Image { return s.img }

// FindText implements device.Snapshot.
func (s *Snapshot) FindText(text string, region *schemas.Rectangle) (schemas.Rectangle, bool) {
	if s.text == nil {
		return schemas.Rectangle{}, false
	}
	return s.text.LocateText(s.img, text, region)
}

type candidate struct {
	at    image.Point
	dist  int
	pixel int64
}

// FindImage implements device.Snapshot. The template is slid over the frame
// (or region) on a coarse grid, then refined pixel by pixel around the best
// coarse hit. Equal hash distances are broken by raw pixel difference.
func (s *Snapshot) FindImage(sig schemas.Signature, region *schemas.Rectangle) (schemas.Rectangle, bool) {
	tpl, err := s.m.template(sig)
	if err != nil {
		s.m.logger.Error("Template unavailable, treating as not found.", zap.String("signature", string(sig)), zap.Error(err))
		return schemas.Rectangle{}, false
	}
	area := s.img.Bounds()
	if region != nil {
		area = area.Intersect(image.Rect(region.P1.X, region.P1.Y, region.P2.X+1, region.P2.Y+1))
	}
	tw, th := tpl.img.Bounds().Dx(), tpl.img.Bounds().Dy()
	if area.Dx() < tw || area.Dy() < th {
		return schemas.Rectangle{}, false
	}

	best := candidate{dist: math.MaxInt}
	maxX, maxY := area.Max.X-tw, area.Max.Y-th
	step := max(1, min(tw, th)/4)
	s.scan(tpl, area.Min.X, area.Min.Y, maxX, maxY, step, &best)
	if step > 1 && best.dist != math.MaxInt {
		s.scan(tpl,
			max(area.Min.X, best.at.X-step), max(area.Min.Y, best.at.Y-step),
			min(maxX, best.at.X+step), min(maxY, best.at.Y+step),
			1, &best)
	}
	if best.dist > s.m.maxDistance {
		return schemas.Rectangle{}, false
	}
	return schemas.Rectangle{
		P1: schemas.Point{X: best.at.X, Y: best.at.Y},
		P2: schemas.Point{X: best.at.X + tw, Y: best.at.Y + th},
	}, true
}

func (s *Snapshot) scan(tpl *template, x0, y0, x1, y1, step int, best *candidate) {
	tw, th := tpl.img.Bounds().Dx(), tpl.img.Bounds().Dy()
	for y := y0; y <= y1; y += step {
		for x := x0; x <= x1; x += step {
			window := crop(s.img, image.Rect(x, y, x+tw, y+th))
			hash, err := goimagehash.PerceptionHash(window)
			if err != nil {
				continue
			}
			dist, err := tpl.hash.Distance(hash)
			if err != nil || dist > best.dist {
				continue
			}
			pixel := pixelDiff(tpl.img, window)
			if dist < best.dist || pixel < best.pixel {
				*best = candidate{at: image.Pt(x, y), dist: dist, pixel: pixel}
			}
		}
	}
}

// crop copies r out of img into a fresh image anchored at the origin, so a
// window and a template with the same pixels hash identically.
func crop(img image.Image, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

func pixelDiff(a, b *image.RGBA) int64 {
	var sum int64
	for i := range a.Pix {
		d := int64(a.Pix[i]) - int64(b.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}
