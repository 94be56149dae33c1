// internal/screenkb/mode.go
package screenkb

import (
	"fmt"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
)

// Mode is the character layout the on-screen keyboard renders.
type Mode int

const (
	Letters Mode = iota
	Numbers
)

func (m Mode) String() string {
	if m == Numbers {
		return "numbers"
	}
	return "letters"
}

// charClass is what a character needs from the keyboard before its key can be
// clicked.
type charClass struct {
	mode  Mode
	shift bool
}

// classify maps a rune to its class and the resource key of its icon.
// Only ASCII letters, digits and '#' are supported.
func classify(r rune) (charClass, string, error) {
	switch {
	case r >= '0' && r <= '9':
		return charClass{mode: Numbers}, fmt.Sprintf("SCREEN_KB.NUM_%c", r), nil
	case r == '#':
		return charClass{mode: Numbers}, "SCREEN_KB.HASH", nil
	case r >= 'A' && r <= 'Z':
		return charClass{mode: Letters, shift: true}, fmt.Sprintf("SCREEN_KB.BIG_%c", r), nil
	case r >= 'a' && r <= 'z':
		return charClass{mode: Letters}, fmt.Sprintf("SCREEN_KB.SML_%c", r), nil
	default:
		return charClass{}, "", fmt.Errorf("%w: %q", ErrUnsupportedCharacter, r)
	}
}

// switchIcons holds the two mode-switch signatures. The "123" icon is rendered
// while the keyboard shows letters; the "ABC" icon while it shows numbers.
type switchIcons struct {
	toNumbers schemas.Signature
	toLetters schemas.Signature
}

// Transition is a mode switch that must be clicked before typing a character.
type Transition struct {
	To Mode
	// Key is the resource key of the switch icon to click.
	Key string
	At  schemas.Rectangle
	// Ambiguous is set when both switch icons were visible, which happens on
	// transitional frames.
	Ambiguous bool
}

// inferRequiredTransition decides from on-screen evidence alone whether the
// keyboard must change mode to reach need. The switch icon for the other mode
// is only visible while that mode is inactive, so seeing the icon that leads
// to need means a switch is required. No icon means the keyboard is assumed
// to already be in the needed mode.
func inferRequiredTransition(snap device.Snapshot, need Mode, icons switchIcons) *Transition {
	wantSig, wantKey := icons.toNumbers, keyNumbersSwitch
	otherSig := icons.toLetters
	if need == Letters {
		wantSig, wantKey = icons.toLetters, keyLettersSwitch
		otherSig = icons.toNumbers
	}
	at, ok := snap.FindImage(wantSig, nil)
	if !ok {
		return nil
	}
	_, other := snap.FindImage(otherSig, nil)
	return &Transition{To: need, Key: wantKey, At: at, Ambiguous: other}
}
