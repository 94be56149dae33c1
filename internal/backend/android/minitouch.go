package android

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/device"
)

// minitouch banner: "v <version>", "^ <contacts> <max-x> <max-y> <max-pressure>", "$ <pid>".
type banner struct {
	version     int
	maxContacts int
	maxX, maxY  int
	maxPressure int
	pid         int
}

func readBanner(r *bufio.Reader) (banner, error) {
	var b banner
	var flag string
	lines := []struct {
		format string
		args   []any
	}{
		{"%s %d", []any{&flag, &b.version}},
		{"%s %d %d %d %d", []any{&flag, &b.maxContacts, &b.maxX, &b.maxY, &b.maxPressure}},
		{"%s %d", []any{&flag, &b.pid}},
	}
	for _, l := range lines {
		line, err := r.ReadString('\n')
		if err != nil {
			return b, fmt.Errorf("minitouch: reading banner: %w", err)
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(line), l.format, l.args...); err != nil {
			return b, fmt.Errorf("minitouch: malformed banner line %q: %w", strings.TrimSpace(line), err)
		}
	}
	// Every gesture uses contact 0.
	if b.maxContacts < 1 {
		return b, fmt.Errorf("minitouch: device reports %d touch contacts", b.maxContacts)
	}
	if b.maxX <= 0 || b.maxY <= 0 {
		return b, fmt.Errorf("minitouch: invalid touch range %dx%d", b.maxX, b.maxY)
	}
	return b, nil
}

// MinitouchConfig tunes the touch client.
type MinitouchConfig struct {
	// Screen is the capture resolution; touches arrive in these coordinates
	// and are scaled to the touch panel range.
	ScreenWidth, ScreenHeight int
	// MoveRate caps move events per second during a swipe.
	MoveRate float64
	Pressure int
	// TapHold is how long a tap keeps the contact down.
	TapHold time.Duration
}

// DefaultMinitouchConfig returns the stock tuning for a screen size.
func DefaultMinitouchConfig(width, height int) MinitouchConfig {
	return MinitouchConfig{ScreenWidth: width, ScreenHeight: height, MoveRate: 60, Pressure: 50, TapHold: 50 * time.Millisecond}
}

// Minitouch sends multi-touch commands to a minitouch daemon over TCP.
// Commands are written synchronously; it owns no goroutines.
type Minitouch struct {
	mu      sync.Mutex
	conn    net.Conn
	w       *bufio.Writer
	banner  banner
	cfg     MinitouchConfig
	limiter *rate.Limiter
	clock   device.Clock
	logger  *zap.Logger
}

var _ device.Touch = (*Minitouch)(nil)

// DialMinitouch connects to a forwarded minitouch socket and reads its banner.
func DialMinitouch(ctx context.Context, addr string, cfg MinitouchConfig, clock device.Clock, logger *zap.Logger) (*Minitouch, error) {
	if cfg.ScreenWidth <= 0 || cfg.ScreenHeight <= 0 {
		return nil, fmt.Errorf("minitouch: invalid screen size %dx%d", cfg.ScreenWidth, cfg.ScreenHeight)
	}
	if clock == nil {
		clock = device.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("minitouch: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	b, err := readBanner(bufio.NewReader(conn))
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	rateLimit := rate.Inf
	if cfg.MoveRate > 0 {
		rateLimit = rate.Limit(cfg.MoveRate)
	}
	m := &Minitouch{
		conn:    conn,
		w:       bufio.NewWriter(conn),
		banner:  b,
		cfg:     cfg,
		limiter: rate.NewLimiter(rateLimit, 1),
		clock:   clock,
		logger:  logger.Named("minitouch"),
	}
	m.logger.Debug("Connected to minitouch.",
		zap.Int("version", b.version), zap.Int("contacts", b.maxContacts), zap.Int("max_x", b.maxX), zap.Int("max_y", b.maxY), zap.Int("pid", b.pid))
	return m, nil
}

// scale maps a screen point into the touch panel range.
func (m *Minitouch) scale(p schemas.Point) (int, int) {
	x := p.X * m.banner.maxX / m.cfg.ScreenWidth
	y := p.Y * m.banner.maxY / m.cfg.ScreenHeight
	return min(max(x, 0), m.banner.maxX), min(max(y, 0), m.banner.maxY)
}

func (m *Minitouch) pressure() int {
	if m.banner.maxPressure > 0 {
		return min(m.cfg.Pressure, m.banner.maxPressure)
	}
	return m.cfg.Pressure
}

// send writes one command batch followed by a commit.
func (m *Minitouch) send(ctx context.Context, cmds ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cmds {
		if _, err := m.w.WriteString(c + "\n"); err != nil {
			return fmt.Errorf("minitouch: write: %w", err)
		}
	}
	if _, err := m.w.WriteString("c\n"); err != nil {
		return fmt.Errorf("minitouch: write: %w", err)
	}
	if err := m.w.Flush(); err != nil {
		return fmt.Errorf("minitouch: flush: %w", err)
	}
	return nil
}

func (m *Minitouch) down(ctx context.Context, p schemas.Point) error {
	x, y := m.scale(p)
	return m.send(ctx, fmt.Sprintf("d 0 %d %d %d", x, y, m.pressure()))
}

func (m *Minitouch) move(ctx context.Context, p schemas.Point) error {
	x, y := m.scale(p)
	return m.send(ctx, fmt.Sprintf("m 0 %d %d %d", x, y, m.pressure()))
}

func (m *Minitouch) up(ctx context.Context) error {
	return m.send(ctx, "u 0")
}

// Tap implements device.Touch.
func (m *Minitouch) Tap(ctx context.Context, p schemas.Point) error {
	if err := m.down(ctx, p); err != nil {
		return err
	}
	if err := m.clock.Sleep(ctx, m.cfg.TapHold); err != nil {
		// Never leave a contact pressed.
		_ = m.up(context.Background())
		return err
	}
	return m.up(ctx)
}

// Swipe implements device.Touch. Move events are paced by the rate limiter
// and spread over s.Duration.
func (m *Minitouch) Swipe(ctx context.Context, s schemas.Swipe) error {
	steps := 10
	if s.Duration > 0 && m.cfg.MoveRate > 0 {
		steps = max(2, int(s.Duration.Seconds()*m.cfg.MoveRate))
	}
	if err := m.down(ctx, s.From); err != nil {
		return err
	}
	dx, dy := s.To.X-s.From.X, s.To.Y-s.From.Y
	for i := 1; i <= steps; i++ {
		if err := m.limiter.Wait(ctx); err != nil {
			_ = m.up(context.Background())
			return err
		}
		p := schemas.Point{X: s.From.X + dx*i/steps, Y: s.From.Y + dy*i/steps}
		if err := m.move(ctx, p); err != nil {
			return err
		}
	}
	return m.up(ctx)
}

// Close closes the connection.
func (m *Minitouch) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.Close()
}
