package bluetooth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/hmi-harness/internal/bluetooth"
	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/device/devicetest"
	"github.com/xkilldash9x/hmi-harness/internal/resources"
)

const transition = 1500 * time.Millisecond

func newTester(t *testing.T, h *fakeHMI, extra map[string]any) *bluetooth.Tester {
	t.Helper()
	tester, err := bluetooth.New(newSession(t, h.dev, testResources(extra), keypad()...))
	require.NoError(t, err)
	return tester
}

func delays(dev *devicetest.Device) []time.Duration {
	var out []time.Duration
	for _, a := range dev.Filter(devicetest.KindSleep) {
		out = append(out, a.Delay)
	}
	return out
}

func TestNew(t *testing.T) {
	dev := devicetest.New(texts())

	t.Run("RequiresTouch", func(t *testing.T) {
		s, err := device.NewSession("HeadUnit", dev, testResources(nil))
		require.NoError(t, err)
		_, err = bluetooth.New(s)
		assert.ErrorIs(t, err, device.ErrMissingCapability)
	})

	t.Run("RequiresSwipe", func(t *testing.T) {
		_, err := bluetooth.New(newSession(t, dev, testResources(map[string]any{"BOTTOM_SWIPE": nil})))
		assert.ErrorIs(t, err, resources.ErrMissingResource)
		assert.Contains(t, err.Error(), "BOTTOM_SWIPE")
	})
}

func TestUnlock_Success(t *testing.T) {
	h := newFakeHMI(texts(recentAppsIcon, devicetest.Box(540, 2100)))
	tester := newTester(t, h, nil)

	ok, err := tester.Unlock(context.Background(), "2211")
	require.NoError(t, err)
	assert.True(t, ok)

	wantPresses := []string{"POWER", "2", "2", "1", "1", "ENTER"}
	if diff := cmp.Diff(wantPresses, h.dev.Targets(devicetest.KindPress)); diff != "" {
		t.Errorf("press sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, h.dev.Count(devicetest.KindSwipe))
	wantDelays := []time.Duration{transition, transition, transition, transition, transition, transition, 3 * time.Second}
	assert.Equal(t, wantDelays, delays(h.dev))
	assert.Equal(t, 1, h.dev.Count(devicetest.KindGrab), "unlock checks the screen exactly once")
}

func TestUnlock_NegativeOutcomes(t *testing.T) {
	t.Run("DisplayOff", func(t *testing.T) {
		h := newFakeHMI()
		ok, err := newTester(t, h, nil).Unlock(context.Background(), "2211")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, h.dev.Count(devicetest.KindGrab))
	})

	t.Run("StillLocked", func(t *testing.T) {
		h := newFakeHMI(texts("Wrong PIN", devicetest.Box(540, 900)))
		ok, err := newTester(t, h, nil).Unlock(context.Background(), "0000")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("IconOutsideFooter", func(t *testing.T) {
		h := newFakeHMI(texts(recentAppsIcon, devicetest.Box(540, 100)))
		ok, err := newTester(t, h, nil).Unlock(context.Background(), "2211")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NoFooterRegionSearchesWholeScreen", func(t *testing.T) {
		h := newFakeHMI(texts(recentAppsIcon, devicetest.Box(540, 100)))
		ok, err := newTester(t, h, map[string]any{"FOOTER_BAR_RECTANGLE": nil}).Unlock(context.Background(), "2211")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestUnlock_InvalidInput(t *testing.T) {
	h := newFakeHMI(texts())

	t.Run("NonDigitPin", func(t *testing.T) {
		_, err := newTester(t, h, nil).Unlock(context.Background(), "22a1")
		assert.Error(t, err)
	})

	t.Run("MissingDigitButton", func(t *testing.T) {
		tester, err := bluetooth.New(newSession(t, h.dev, testResources(nil), "POWER", "ENTER", "1", "2"))
		require.NoError(t, err)
		_, err = tester.Unlock(context.Background(), "2213")
		assert.ErrorIs(t, err, device.ErrMissingCapability)
	})

	t.Run("MissingUnlockDelay", func(t *testing.T) {
		_, err := newTester(t, h, map[string]any{"UNLOCK_DELAY_S": nil}).Unlock(context.Background(), "1")
		assert.ErrorIs(t, err, resources.ErrMissingResource)
	})

	assert.Zero(t, h.dev.Count(devicetest.KindPress), "invalid input must not press anything")
}

func TestOpenApp_FoundOnThirdAttempt(t *testing.T) {
	h := newFakeHMI(texts("Settings", devicetest.Box(300, 700)))
	h.dev.Render = func(grab int) *devicetest.Frame {
		if grab < 3 {
			return texts("Camera", devicetest.Box(100, 100))
		}
		return texts("Settings", devicetest.Box(300, 700))
	}
	tester := newTester(t, h, nil)

	ok, err := tester.OpenApp(context.Background(), "Settings")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"HOME"}, h.dev.Targets(devicetest.KindPress))
	assert.Equal(t, 3, h.dev.Count(devicetest.KindFindText))
	assert.Equal(t, 2, h.dev.Count(devicetest.KindSwipe))
	taps := h.dev.Filter(devicetest.KindTap)
	require.Len(t, taps, 1)
	assert.Equal(t, devicetest.Box(300, 700).Center(), taps[0].Point)
	// Home, two misses, one tap.
	assert.Equal(t, []time.Duration{transition, transition, transition, transition}, delays(h.dev))
}

func TestOpenApp_NotFound(t *testing.T) {
	h := newFakeHMI(texts("Camera", devicetest.Box(100, 100)))
	tester := newTester(t, h, nil)

	ok, err := tester.OpenApp(context.Background(), "Settings")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, h.dev.Count(devicetest.KindFindText))
	assert.Equal(t, 4, h.dev.Count(devicetest.KindSwipe))
	assert.Zero(t, h.dev.Count(devicetest.KindTap))
}

func TestOpenApp_CustomBudget(t *testing.T) {
	h := newFakeHMI(texts())
	tester, err := bluetooth.New(newSession(t, h.dev, testResources(nil), keypad()...),
		bluetooth.WithBudgets(bluetooth.Budgets{ScrollingTries: 2}))
	require.NoError(t, err)

	ok, err := tester.OpenApp(context.Background(), "Settings")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, h.dev.Count(devicetest.KindSwipe))
}

func TestOpenSettingsMenu(t *testing.T) {
	h := newFakeHMI(texts("Connected devices", devicetest.Box(200, 400)))
	tester := newTester(t, h, nil)

	ok, err := tester.OpenSettingsMenu(context.Background(), "Connected devices")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, h.dev.Count(devicetest.KindSwipe))
	assert.Zero(t, h.dev.Count(devicetest.KindPress))
	assert.Equal(t, []time.Duration{transition}, delays(h.dev))
}

func TestRequestToPair(t *testing.T) {
	t.Run("NoPairMenu", func(t *testing.T) {
		h := newFakeHMI(texts("Connected devices", devicetest.Box(1, 1)))
		ok, err := newTester(t, h, nil).RequestToPair(context.Background(), "Head Unit")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, h.dev.Count(devicetest.KindGrab))
		assert.Zero(t, h.dev.Count(devicetest.KindTap))
	})

	t.Run("PeerAppearsLater", func(t *testing.T) {
		menu, peer := devicetest.Box(300, 300), devicetest.Box(300, 900)
		h := newFakeHMI(texts("Pair new device", menu))
		h.dev.Render = func(grab int) *devicetest.Frame {
			switch {
			case grab == 1:
				return texts("Pair new device", menu)
			case grab < 4:
				return texts("Searching", devicetest.Box(300, 500))
			default:
				return texts("Head Unit", peer)
			}
		}
		ok, err := newTester(t, h, nil).RequestToPair(context.Background(), "Head Unit")
		require.NoError(t, err)
		assert.True(t, ok)

		taps := h.dev.Filter(devicetest.KindTap)
		require.Len(t, taps, 2)
		assert.Equal(t, menu.Center(), taps[0].Point)
		assert.Equal(t, peer.Center(), taps[1].Point)
		assert.Equal(t, []time.Duration{transition, 200 * time.Millisecond, 200 * time.Millisecond}, delays(h.dev))
	})
}

func TestAcceptToPair(t *testing.T) {
	popup := []int{100, 800, 980, 1200}

	t.Run("InsidePopup", func(t *testing.T) {
		h := newFakeHMI(texts("PAIR", devicetest.Box(800, 1100)))
		ok, err := newTester(t, h, map[string]any{"PAIR_POPUP_RECTANGLE": popup}).AcceptToPair(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, h.dev.Count(devicetest.KindTap))
		assert.Empty(t, delays(h.dev), "no settle after the final tap")
	})

	t.Run("OutsidePopupTimesOut", func(t *testing.T) {
		h := newFakeHMI(texts("PAIR", devicetest.Box(800, 100)))
		ok, err := newTester(t, h, map[string]any{"PAIR_POPUP_RECTANGLE": popup}).AcceptToPair(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 10, h.dev.Count(devicetest.KindFindText))
		assert.Len(t, delays(h.dev), 9)
		assert.Zero(t, h.dev.Count(devicetest.KindTap))
	})
}

func TestIsPairedToDevice(t *testing.T) {
	h := newFakeHMI(texts("moto e13", devicetest.Box(500, 500)))
	tester := newTester(t, h, nil)

	ok, err := tester.IsPairedToDevice(context.Background(), "moto e13")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tester.IsPairedToDevice(context.Background(), "Head Unit")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, h.dev.Count(devicetest.KindTap), "checking pairing never touches the screen")
}

func TestForgetDevice(t *testing.T) {
	popup := []int{0, 1000, 1080, 1400}
	screens := func() []*devicetest.Frame {
		return []*devicetest.Frame{
			texts(detailsIcon, devicetest.Box(1000, 300)),
			texts("FORGET", devicetest.Box(200, 600)),
			texts("FORGET DEVICE", devicetest.Box(700, 1200)),
			texts("Connected devices", devicetest.Box(200, 100)),
		}
	}

	t.Run("Success", func(t *testing.T) {
		h := newFakeHMI(screens()...)
		ok, err := newTester(t, h, map[string]any{"FORGET_POPUP_RECTANGLE": popup}).ForgetDevice(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, h.dev.Count(devicetest.KindTap))
		assert.Equal(t, 3, h.dev.Count(devicetest.KindGrab))
		assert.Equal(t, []time.Duration{transition, transition}, delays(h.dev))
	})

	t.Run("StopsAtMissingStep", func(t *testing.T) {
		s := screens()
		s[1] = texts("DISCONNECT", devicetest.Box(200, 600))
		h := newFakeHMI(s...)
		ok, err := newTester(t, h, nil).ForgetDevice(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, h.dev.Count(devicetest.KindTap))
	})

	t.Run("ConfirmOutsidePopup", func(t *testing.T) {
		s := screens()
		s[2] = texts("FORGET DEVICE", devicetest.Box(700, 200))
		h := newFakeHMI(s...)
		ok, err := newTester(t, h, map[string]any{"FORGET_POPUP_RECTANGLE": popup}).ForgetDevice(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 2, h.dev.Count(devicetest.KindTap))
	})
}

func TestCancellation(t *testing.T) {
	h := newFakeHMI(texts())
	tester := newTester(t, h, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tester.IsPairedToDevice(ctx, "Head Unit")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = tester.OpenApp(ctx, "Settings")
	assert.ErrorIs(t, err, context.Canceled)
}
