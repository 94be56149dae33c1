// File: internal/resources/table.go
package resources

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

// ErrMissingResource reports a key the drivers require but the table lacks.
var ErrMissingResource = errors.New("missing resource")

// Table is the immutable mapping from symbolic resource keys to image
// signatures and scalar configuration (delays, regions, gestures). Keys are
// dotted paths ("SCREEN_KB.NUM_3") and are matched case-insensitively, the
// same way viper treats configuration keys.
type Table struct {
	values  map[string]any
	baseDir string
	source  string
}

// Load reads a resource table from a YAML, JSON or TOML file. Relative image
// paths inside the file are resolved against the file's directory.
func Load(path string) (*Table, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand resource path %q: %w", path, err)
	}
	v := viper.New()
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read resource table %q: %w", expanded, err)
	}
	t := &Table{
		values:  make(map[string]any),
		baseDir: filepath.Dir(expanded),
		source:  expanded,
	}
	flatten("", v.AllSettings(), t.values)
	return t, nil
}

// FromMap builds a table from an in-memory map. Nested maps and dotted keys
// are both accepted. The map is copied, so later changes to it are not seen.
func FromMap(m map[string]any) *Table {
	t := &Table{values: make(map[string]any), source: "memory"}
	flatten("", m, t.values)
	return t
}

// WithBaseDir returns a copy of t that resolves relative signatures against dir.
func (t *Table) WithBaseDir(dir string) *Table {
	cp := *t
	cp.baseDir = dir
	return &cp
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		switch nested := v.(type) {
		case map[string]any:
			flatten(key, nested, out)
		case map[any]any:
			flatten(key, cast.ToStringMap(nested), out)
		default:
			out[key] = v
		}
	}
}

// Source names where the table was loaded from.
func (t *Table) Source() string { return t.source }

// Has reports whether key is present.
func (t *Table) Has(key string) bool {
	_, ok := t.values[strings.ToLower(key)]
	return ok
}

// Keys returns every key in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Require checks that every key is present, reporting all missing keys at once.
func (t *Table) Require(keys ...string) error {
	var errs []error
	for _, k := range keys {
		if !t.Has(k) {
			errs = append(errs, missing(k))
		}
	}
	return errors.Join(errs...)
}

func (t *Table) lookup(key string) (any, error) {
	v, ok := t.values[strings.ToLower(key)]
	if !ok {
		return nil, missing(key)
	}
	return v, nil
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", ErrMissingResource, key)
}

// Signature resolves an image template key to a file path.
func (t *Table) Signature(key string) (schemas.Signature, error) {
	s, err := t.String(key)
	if err != nil {
		return "", err
	}
	p, err := homedir.Expand(s)
	if err != nil {
		return "", fmt.Errorf("resource %s: %w", key, err)
	}
	if !filepath.IsAbs(p) && t.baseDir != "" {
		p = filepath.Join(t.baseDir, p)
	}
	return schemas.Signature(p), nil
}

// Seconds reads a delay expressed in (fractional) seconds.
func (t *Table) Seconds(key string) (time.Duration, error) {
	v, err := t.lookup(key)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("resource %s: not a number of seconds: %w", key, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("resource %s: negative delay %v", key, f)
	}
	return time.Duration(math.Round(f * float64(time.Second))), nil
}

// Rectangle reads a required [x1, y1, x2, y2] region.
func (t *Table) Rectangle(key string) (schemas.Rectangle, error) {
	v, err := t.lookup(key)
	if err != nil {
		return schemas.Rectangle{}, err
	}
	coords, err := cast.ToIntSliceE(v)
	if err != nil {
		return schemas.Rectangle{}, fmt.Errorf("resource %s: %w", key, err)
	}
	r, err := schemas.NewRectangle(coords)
	if err != nil {
		return schemas.Rectangle{}, fmt.Errorf("resource %s: %w", key, err)
	}
	return r, nil
}

// Region reads an optional search region. An absent key yields (nil, nil),
// which callers treat as an unscoped search.
func (t *Table) Region(key string) (*schemas.Rectangle, error) {
	if !t.Has(key) {
		return nil, nil
	}
	r, err := t.Rectangle(key)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Swipe reads a [x1, y1, x2, y2(, ms)] gesture.
func (t *Table) Swipe(key string) (schemas.Swipe, error) {
	v, err := t.lookup(key)
	if err != nil {
		return schemas.Swipe{}, err
	}
	coords, err := cast.ToIntSliceE(v)
	if err != nil {
		return schemas.Swipe{}, fmt.Errorf("resource %s: %w", key, err)
	}
	s, err := schemas.NewSwipe(coords)
	if err != nil {
		return schemas.Swipe{}, fmt.Errorf("resource %s: %w", key, err)
	}
	return s, nil
}

// String reads a scalar string value.
func (t *Table) String(key string) (string, error) {
	v, err := t.lookup(key)
	if err != nil {
		return "", err
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("resource %s: %w", key, err)
	}
	return s, nil
}

// Strings reads a list of strings, e.g. a process argument vector.
func (t *Table) Strings(key string) ([]string, error) {
	v, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	ss, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", key, err)
	}
	return ss, nil
}
