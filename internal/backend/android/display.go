package android

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/vision"
)

// Display captures the device screen.
type Display struct {
	adb     *ADB
	matcher *vision.Matcher
	// Hierarchy enables text lookups from a uiautomator dump taken with
	// every capture.
	Hierarchy bool
	logger    *zap.Logger
}

var _ device.Display = (*Display)(nil)

// NewDisplay creates a display over adb.
func NewDisplay(adb *ADB, matcher *vision.Matcher, hierarchy bool, logger *zap.Logger) *Display {
	if matcher == nil {
		matcher = vision.NewMatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Display{adb: adb, matcher: matcher, Hierarchy: hierarchy, logger: logger.Named("display")}
}

// Grab implements device.Display. An unreachable device or an empty
// screencap yields (nil, nil).
func (d *Display) Grab(ctx context.Context) (device.Snapshot, error) {
	png, err := d.adb.ExecOut(ctx, "screencap", "-p")
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			d.logger.Debug("Device unavailable, no display output.", zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("android: screencap: %w", err)
	}
	if len(png) == 0 {
		return nil, nil
	}

	var text vision.TextLocator
	if d.Hierarchy {
		idx, err := d.hierarchy(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.logger.Warn("UI hierarchy dump failed, text lookups will miss.", zap.Error(err))
		} else {
			text = idx
		}
	}
	snap, err := d.matcher.Decode(png, text)
	if err != nil {
		return nil, fmt.Errorf("android: %w", err)
	}
	return snap, nil
}

func (d *Display) hierarchy(ctx context.Context) (vision.TextIndex, error) {
	out, err := d.adb.ExecOut(ctx, "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return nil, err
	}
	return parseHierarchy(out)
}

var boundsRe = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// parseHierarchy extracts text and content descriptions with their bounds
// from a uiautomator window dump.
func parseHierarchy(dump []byte) (vision.TextIndex, error) {
	// uiautomator appends a status line after the document when dumping to a tty.
	if end := bytes.LastIndexByte(dump, '>'); end >= 0 {
		dump = dump[:end+1]
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(dump); err != nil {
		return nil, fmt.Errorf("android: parsing ui hierarchy: %w", err)
	}
	var idx vision.TextIndex
	for _, node := range doc.FindElements("//node") {
		r, ok := parseBounds(node.SelectAttrValue("bounds", ""))
		if !ok {
			continue
		}
		for _, attr := range []string{"text", "content-desc"} {
			if v := node.SelectAttrValue(attr, ""); v != "" {
				idx = append(idx, vision.TextBox{Text: v, Rect: r})
			}
		}
	}
	return idx, nil
}

func parseBounds(s string) (schemas.Rectangle, bool) {
	m := boundsRe.FindStringSubmatch(s)
	if m == nil {
		return schemas.Rectangle{}, false
	}
	coords := make([]int, 4)
	for i := range coords {
		coords[i], _ = strconv.Atoi(m[i+1])
	}
	r, err := schemas.NewRectangle(coords)
	if err != nil || r.Empty() {
		return schemas.Rectangle{}, false
	}
	return r, true
}
