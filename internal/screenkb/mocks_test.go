// FILE: ./internal/screenkb/mocks_test.go
package screenkb

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device/devicetest"
	"github.com/xkilldash9x/hmi-harness/internal/resources"
)

// simKeyboard models an HMI on-screen keyboard well enough to check that the
// automaton drives it correctly: it renders the icons a real keyboard would
// show for its current mode and shift state and reacts to clicks on them.
type simKeyboard struct {
	mu        sync.Mutex
	open      bool
	mode      Mode
	shift     bool
	typed     strings.Builder
	submitted bool

	// hidden icons are never rendered, to simulate a broken resource.
	hidden map[string]bool
	// bothSwitches renders both mode icons, as on a transitional frame.
	bothSwitches bool

	dev    *devicetest.Device
	boxes  map[string]schemas.Rectangle
	byName map[schemas.Point]string
}

var simKeys = func() []string {
	keys := []string{keyOffIcon, keyLettersSwitch, keyNumbersSwitch, keyShift, keyEnter, "SCREEN_KB.HASH"}
	for c := '0'; c <= '9'; c++ {
		keys = append(keys, fmt.Sprintf("SCREEN_KB.NUM_%c", c))
	}
	for c := 'A'; c <= 'Z'; c++ {
		keys = append(keys, fmt.Sprintf("SCREEN_KB.BIG_%c", c))
	}
	for c := 'a'; c <= 'z'; c++ {
		keys = append(keys, fmt.Sprintf("SCREEN_KB.SML_%c", c))
	}
	return keys
}()

func sig(key string) schemas.Signature {
	return schemas.Signature("kb/" + strings.ToLower(key) + ".png")
}

// testResources returns a table with every keyboard key and fixed delays.
func testResources(t *testing.T, drop ...string) *resources.Table {
	t.Helper()
	m := map[string]any{
		keyTransitionDelay:       0.2,
		keyScreenTransitionDelay: 0.5,
	}
	for _, k := range simKeys {
		m[k] = string(sig(k))
	}
	for _, k := range drop {
		delete(m, k)
	}
	return resources.FromMap(m)
}

func newSimKeyboard(t *testing.T) *simKeyboard {
	t.Helper()
	s := &simKeyboard{
		hidden: map[string]bool{},
		boxes:  map[string]schemas.Rectangle{},
		byName: map[schemas.Point]string{},
	}
	for i, k := range simKeys {
		box := devicetest.Box(40+(i%12)*50, 40+(i/12)*50)
		s.boxes[k] = box
		s.byName[box.Center()] = k
	}
	s.dev = &devicetest.Device{Render: func(int) *devicetest.Frame { return s.render() }, Labels: s.byName}
	s.dev.OnClick = s.click
	return s
}

func (s *simKeyboard) render() *devicetest.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &devicetest.Frame{Images: map[schemas.Signature]schemas.Rectangle{}}
	show := func(k string) {
		if !s.hidden[k] {
			f.Images[sig(k)] = s.boxes[k]
		}
	}
	if !s.open {
		show(keyOffIcon)
		return f
	}
	show(keyEnter)
	switch s.mode {
	case Letters:
		show(keyNumbersSwitch)
		show(keyShift)
		if s.bothSwitches {
			show(keyLettersSwitch)
		}
		for _, k := range simKeys {
			if (s.shift && strings.HasPrefix(k, "SCREEN_KB.BIG_")) || (!s.shift && strings.HasPrefix(k, "SCREEN_KB.SML_")) {
				show(k)
			}
		}
	case Numbers:
		show(keyLettersSwitch)
		show("SCREEN_KB.HASH")
		for _, k := range simKeys {
			if strings.HasPrefix(k, "SCREEN_KB.NUM_") {
				show(k)
			}
		}
	}
	return f
}

func (s *simKeyboard) click(p schemas.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.byName[p]
	switch {
	case key == keyOffIcon:
		s.open = true
	case key == keyNumbersSwitch:
		s.mode = Numbers
	case key == keyLettersSwitch:
		s.mode = Letters
	case key == keyShift:
		s.shift = true
	case key == keyEnter:
		s.submitted = true
	case key == "SCREEN_KB.HASH":
		s.typed.WriteByte('#')
	case strings.HasPrefix(key, "SCREEN_KB.NUM_"), strings.HasPrefix(key, "SCREEN_KB.BIG_"), strings.HasPrefix(key, "SCREEN_KB.SML_"):
		s.typed.WriteByte(key[len(key)-1])
		s.shift = false
	}
}

func (s *simKeyboard) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed.String()
}

// clicks returns the resource keys of every clicked icon in order.
func (s *simKeyboard) clicks() []string {
	return s.dev.Targets(devicetest.KindClick)
}
