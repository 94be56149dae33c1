// Package android drives a physical or emulated Android device (head unit or
// phone) through the adb command line tool. Screens come from screencap,
// on-screen text from the uiautomator hierarchy, hardware buttons from input
// key events and touches from minitouch, falling back to "input tap/swipe".
package android

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/internal/command"
)

// ErrDeviceUnavailable reports that adb cannot reach the device, which is
// what a powered-off head unit looks like.
var ErrDeviceUnavailable = errors.New("android device unavailable")

// ADB addresses one device through the adb binary.
type ADB struct {
	Path   string
	Serial string
	runner command.Runner
	logger *zap.Logger
}

// NewADB returns a client for serial. An empty path means "adb" from PATH;
// a nil runner means command.ExecRunner.
func NewADB(path, serial string, runner command.Runner, logger *zap.Logger) *ADB {
	if path == "" {
		path = "adb"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ADB{Path: path, Serial: serial, runner: runner, logger: logger.Named("adb")}
}

func (a *ADB) args(rest ...string) []string {
	if a.Serial == "" {
		return rest
	}
	return append([]string{"-s", a.Serial}, rest...)
}

func (a *ADB) run(ctx context.Context, rest ...string) ([]byte, error) {
	out, err := a.runner.Run(ctx, a.Path, a.args(rest...)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if unavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return nil, err
	}
	return out, nil
}

// deviceGone matches the messages adb prints for a missing, offline or
// unauthorized device.
var deviceGone = regexp.MustCompile(`device '[^']*' not found|device offline|no devices/emulators found|device (still )?unauthorized`)

// unavailable reports whether err is adb failing to reach the device. A
// missing adb binary is a broken bench, not a dark screen.
func unavailable(err error) bool {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return deviceGone.MatchString(strings.ToLower(err.Error()))
}

// ExecOut runs a shell command and returns its raw binary output.
func (a *ADB) ExecOut(ctx context.Context, cmd ...string) ([]byte, error) {
	return a.run(ctx, append([]string{"exec-out"}, cmd...)...)
}

// Shell runs a shell command and returns its output.
func (a *ADB) Shell(ctx context.Context, cmd ...string) (string, error) {
	out, err := a.run(ctx, append([]string{"shell"}, cmd...)...)
	return string(out), err
}

// Forward maps a local TCP port to a device socket, e.g. "localabstract:minitouch".
func (a *ADB) Forward(ctx context.Context, localPort int, remote string) error {
	_, err := a.run(ctx, "forward", fmt.Sprintf("tcp:%d", localPort), remote)
	return err
}

// RemoveForward undoes Forward.
func (a *ADB) RemoveForward(ctx context.Context, localPort int) error {
	_, err := a.run(ctx, "forward", "--remove", fmt.Sprintf("tcp:%d", localPort))
	return err
}

// ScreenSize reads the display size reported by "wm size". An override
// size, when present, wins over the physical one.
func (a *ADB) ScreenSize(ctx context.Context) (width, height int, err error) {
	out, err := a.Shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}
	return parseWMSize(out)
}

func parseWMSize(out string) (int, int, error) {
	var w, h int
	found := false
	for _, line := range strings.Split(out, "\n") {
		_, size, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(size), "%dx%d", &w, &h); err == nil {
			found = true
			if strings.HasPrefix(strings.TrimSpace(line), "Override") {
				break
			}
		}
	}
	if !found {
		return 0, 0, fmt.Errorf("android: unexpected wm size output %q", strings.TrimSpace(out))
	}
	return w, h, nil
}
