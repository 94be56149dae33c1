package vision

import (
	"image"
	"strings"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

// TextBox is a piece of rendered text and where it was laid out.
type TextBox struct {
	Text string
	Rect schemas.Rectangle
}

// TextIndex answers text lookups from layout information captured alongside
// a frame (a DOM or an accessibility tree), so no OCR is needed.
// Exact matches win over case-insensitive ones; among equals the first in
// layout order is returned.
type TextIndex []TextBox

// LocateText implements TextLocator.
func (idx TextIndex) LocateText(_ image.Image, text string, region *schemas.Rectangle) (schemas.Rectangle, bool) {
	want := strings.TrimSpace(text)
	var fallback *schemas.Rectangle
	for i := range idx {
		box := &idx[i]
		if region != nil && !region.Contains(box.Rect.Center()) {
			continue
		}
		got := strings.TrimSpace(box.Text)
		if got == want {
			return box.Rect, true
		}
		if fallback == nil && strings.EqualFold(got, want) {
			fallback = &box.Rect
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return schemas.Rectangle{}, false
}
