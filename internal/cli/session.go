package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/backend"
	"github.com/roach88/querykit/internal/config"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/logging"
	"github.com/roach88/querykit/internal/metrics"
	"github.com/roach88/querykit/internal/queryset"
)

// session is an opened backend plus everything loaded to reach it.
type session struct {
	cfg     *config.Config
	log     *slog.Logger
	target  backend.Target
	backend queryset.Backend[ir.IRObject]
	reg     *prometheus.Registry
	logFile io.Closer
	out     *OutputFormatter
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig loads the config file and builds its logger. Errors are
// reported through out.
func loadConfig(opts *RootOptions, out *OutputFormatter) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, nil, out.Fail(CodeConfig, "failed to load config", err)
	}
	log, closer, err := logging.New(cfg.Log, out.GetErrWriter(), opts.Verbose)
	if err != nil {
		return nil, nil, nil, out.Fail(CodeConfig, "failed to configure logging", err)
	}
	return cfg, log, closer, nil
}

// openSession loads the config, opens the backend it names and wraps it
// with metrics when metrics.enabled is set.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := formatter(opts, cmd)
	cfg, log, closer, err := loadConfig(opts, out)
	if err != nil {
		return nil, err
	}

	target, err := backend.Open(ctx, cfg.Backend, log)
	if err != nil {
		closer.Close()
		return nil, out.Fail(CodeBackend, "failed to open backend", err)
	}

	s := &session{cfg: cfg, log: log, target: target, backend: target, logFile: closer, out: out}
	if cfg.Metrics.Enabled {
		s.reg = prometheus.NewRegistry()
		s.backend = metrics.Instrument[ir.IRObject](target, metrics.NewCollector(s.reg))
	}
	out.VerboseLog("backend: %s", cfg.Backend.Driver)
	return s, nil
}

// options returns the query set options the config asks for.
func (s *session) options() []queryset.Option {
	policy, _ := s.cfg.CountPolicy() // validated by config.Load
	return []queryset.Option{queryset.WithCountPolicy(policy), queryset.WithLogger(s.log)}
}

// Close reports collected metrics and releases the backend and log file.
func (s *session) Close() {
	if s.reg != nil {
		if err := writeMetrics(s.out.GetErrWriter(), s.reg); err != nil {
			s.log.Warn("failed to gather metrics", "error", err)
		}
	}
	if err := s.target.Close(); err != nil {
		s.log.Error("error closing backend", "error", err)
	}
	s.logFile.Close()
}

// writeMetrics prints counters and histogram sample counts, one series per
// line, sorted by name.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			var set string
			if len(labels) > 0 {
				set = "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s%s %g", mf.GetName(), set, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				lines = append(lines, fmt.Sprintf("%s_count%s %d", mf.GetName(), set, m.GetHistogram().GetSampleCount()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
