package android

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/hmi-harness/internal/device"
)

// DefaultKeycodes maps the button identifiers used by the flows to Android
// key codes.
func DefaultKeycodes() map[string]string {
	m := map[string]string{
		"POWER": "KEYCODE_POWER",
		"HOME":  "KEYCODE_HOME",
		"BACK":  "KEYCODE_BACK",
		"ENTER": "KEYCODE_ENTER",
		"MENU":  "KEYCODE_MENU",
	}
	for d := '0'; d <= '9'; d++ {
		m[string(d)] = "KEYCODE_" + string(d)
	}
	return m
}

// KeyButton presses a key through "input keyevent".
type KeyButton struct {
	adb     *ADB
	Keycode string
}

// Press implements device.Button.
func (b *KeyButton) Press(ctx context.Context) error {
	if _, err := b.adb.Shell(ctx, "input", "keyevent", b.Keycode); err != nil {
		return fmt.Errorf("android: keyevent %s: %w", b.Keycode, err)
	}
	return nil
}

// Buttons builds the button set from DefaultKeycodes with overrides applied.
// Override ids are upper-cased since config loaders fold map keys.
func Buttons(adb *ADB, overrides map[string]string) device.Buttons {
	codes := DefaultKeycodes()
	for id, code := range overrides {
		codes[strings.ToUpper(id)] = code
	}
	out := make(device.Buttons, len(codes))
	for id, code := range codes {
		out[id] = &KeyButton{adb: adb, Keycode: code}
	}
	return out
}
