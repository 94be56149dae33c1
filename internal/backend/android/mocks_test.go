package android

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/hmi-harness/internal/command/commandtest"
)

func newFakeRunner() *commandtest.Recorder { return commandtest.New() }

var errNoDevice = errors.New("exit status 1: adb: device 'HU01' not found")

// fakeMinitouch is a minitouch daemon stand-in that sends the banner and
// collects committed command lines until the client disconnects.
type fakeMinitouch struct {
	ln    net.Listener
	mu    sync.Mutex
	lines []string
	done  chan struct{}
}

func startFakeMinitouch(t *testing.T, banner string) *fakeMinitouch {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeMinitouch{ln: ln, done: make(chan struct{})}
	go f.serve(banner)
	return f
}

func (f *fakeMinitouch) serve(banner string) {
	defer close(f.done)
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(banner)); err != nil {
		return
	}
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		f.mu.Lock()
		f.lines = append(f.lines, sc.Text())
		f.mu.Unlock()
	}
}

func (f *fakeMinitouch) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

// wait closes the listener and blocks until the connection is drained.
func (f *fakeMinitouch) wait() []string {
	f.ln.Close()
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

const stdBanner = "v 1\n^ 10 4095 4095 255\n$ 4242\n"
