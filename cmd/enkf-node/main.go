// Command enkf-node builds, initializes, stores and inspects ensembles of
// node state.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"enkfcore/internal/blob"
	"enkfcore/internal/catalog"
	"enkfcore/internal/config"
	"enkfcore/internal/log"
	"enkfcore/internal/metrics"
	"enkfcore/internal/node/builtin"
	"enkfcore/internal/storage"
	"enkfcore/pkg/nodeapi"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "enkf-node:", err)
		exitFunc(1)
	}
}

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	logger   zerolog.Logger
	registry *nodeapi.Registry
	out      io.Writer
	errOut   io.Writer

	promRegistry *prometheus.Registry
	expvar       *metrics.Expvar
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{registry: builtin.NewRegistry(), out: out, errOut: errOut}
	root := &cobra.Command{
		Use:               "enkf-node",
		Short:             "Manage ensembles of EnKF node state",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("ENKFCORE_CONFIG"), "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")
	root.AddCommand(a.typesCmd(), a.initCmd(), a.inspectCmd(), a.dropCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = log.New(log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.errOut, Service: "enkf-node"})
	runID := uuid.NewString()
	cmd.SetContext(log.ContextWithRunID(cmd.Context(), runID))
	a.logger.Debug().Str("run_id", runID).Str("command", cmd.Name()).Msg("starting")
	return nil
}

func (a *app) recorder() (metrics.Recorder, error) {
	if a.cfg.Metrics.Enabled {
		a.promRegistry = prometheus.NewRegistry()
		return metrics.NewPrometheus(a.cfg.Metrics.Namespace, a.promRegistry)
	}
	a.expvar = metrics.NewExpvar("")
	return a.expvar, nil
}

// openStore opens the configured blob store and catalog. The caller closes
// the returned Store.
func (a *app) openStore(ctx context.Context) (*storage.Store, error) {
	blobs, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	cat, err := catalog.Open(ctx, a.cfg.Catalog)
	if err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	rec, err := a.recorder()
	if err != nil {
		_ = blobs.Close()
		_ = cat.Close()
		return nil, err
	}
	return storage.New(blobs, cat,
		storage.WithRecorder(rec),
		storage.WithLogger(a.logger.With().Str("component", "storage").Logger()),
	)
}

// reportMetrics logs the node I/O totals gathered during the command.
func (a *app) reportMetrics(ctx context.Context) {
	logger := log.FromContext(ctx, a.logger)
	if a.expvar != nil {
		snap := a.expvar.Snapshot()
		logger.Debug().Interface("results", snap.Results).Interface("bytes", snap.Bytes).Msg("node io")
		return
	}
	if a.promRegistry == nil {
		return
	}
	families, err := a.promRegistry.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("gather metrics")
		return
	}
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				total += float64(h.GetSampleCount())
			}
		}
		logger.Info().Str("metric", mf.GetName()).Float64("total", total).Msg("node io")
	}
}
