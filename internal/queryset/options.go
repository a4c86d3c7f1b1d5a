package queryset

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// CountPolicy decides whether Count honors the query set's range.
type CountPolicy int

const (
	// CountMatches counts every record the predicate matches; the range is
	// ignored.
	CountMatches CountPolicy = iota

	// CountWindow counts the records inside the range window.
	CountWindow
)

func (p CountPolicy) String() string {
	if p == CountWindow {
		return "window"
	}
	return "matches"
}

// ParseCountPolicy accepts "matches" or "window".
func ParseCountPolicy(s string) (CountPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "matches":
		return CountMatches, nil
	case "window":
		return CountWindow, nil
	}
	return 0, fmt.Errorf("unknown count policy %q (want matches or window)", s)
}

// IDGenerator produces execution ids used to correlate log lines.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 execution ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids in order, then repeats the last.
// For tests that assert on log output.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func NewFixedGenerator(ids ...string) *FixedGenerator {
	if len(ids) == 0 {
		ids = []string{"exec-default"}
	}
	return &FixedGenerator{ids: ids}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.ids[g.idx]
	if g.idx < len(g.ids)-1 {
		g.idx++
	}
	return id
}

type options struct {
	countPolicy CountPolicy
	logger      *slog.Logger
	ids         IDGenerator
}

func defaultOptions() options {
	return options{
		countPolicy: CountMatches,
		ids:         UUIDv7Generator{},
	}
}

// Option configures the store a QuerySet is bound to.
type Option func(*options)

// WithCountPolicy sets how Count treats the range. Default CountMatches.
func WithCountPolicy(p CountPolicy) Option {
	return func(o *options) { o.countPolicy = p }
}

// WithLogger sets the logger for execution calls. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIDGenerator sets the execution id source. Default UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

func (o options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slog.Default()
}
