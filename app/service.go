package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/v2gplan/config"
	"github.com/kilianp07/v2gplan/core/history"
	coremetrics "github.com/kilianp07/v2gplan/core/metrics"
	coremon "github.com/kilianp07/v2gplan/core/monitoring"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
	coremqtt "github.com/kilianp07/v2gplan/core/mqtt"
	"github.com/kilianp07/v2gplan/core/planner"
	"github.com/kilianp07/v2gplan/infra/loader"
	"github.com/kilianp07/v2gplan/infra/logger"
	"github.com/kilianp07/v2gplan/infra/metrics"
	"github.com/kilianp07/v2gplan/infra/monitoring"
	"github.com/kilianp07/v2gplan/infra/mqtt"
	"github.com/kilianp07/v2gplan/infra/solver"
	"github.com/kilianp07/v2gplan/internal/eventbus"
	"github.com/kilianp07/v2gplan/pkg/export"
)

// Service wires the planner to its metrics sink, history store, publisher
// and exporters.
type Service struct {
	Planner *planner.Planner
	History history.Store

	cfg    *config.Config
	opts   planner.Options
	format export.Format
	sink   coremetrics.MetricsSink
	pub    *mqtt.PahoClient
	log    logger.Logger
}

// Outcome is a finished run and the files written for it.
type Outcome struct {
	Result *planner.Result
	Files  []string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Monitoring)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)

	opts, err := cfg.Planner.Options()
	if err != nil {
		return nil, fmt.Errorf("planner options: %w", err)
	}
	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := history.NewStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	svc := &Service{History: store, cfg: cfg, opts: opts, format: format, sink: sink, log: logg}
	var pub coremqtt.PlanPublisher
	if cfg.Export.Publish {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.pub, pub = client, client
	}

	tol, iisRows := cfg.Planner.Tolerance, cfg.Planner.IISMaxRows
	newSolver := func(progress eventbus.Publisher[mip.Progress]) mip.Solver {
		return solver.New(
			solver.WithLogger(logger.New("solver")),
			solver.WithProgress(progress),
			solver.WithTolerance(tol),
			solver.WithMaxIISRows(iisRows),
		)
	}
	collect := func(ctx context.Context, bus *eventbus.TypedBus[mip.Progress], runID string) <-chan struct{} {
		return metrics.StartProgressCollector(ctx, bus, sink, runID)
	}
	pl, err := planner.New(newSolver,
		planner.WithLogger(logger.New("planner")),
		planner.WithMetrics(sink),
		planner.WithHistory(store),
		planner.WithPublisher(pub),
		planner.WithProgressObserver(collect),
	)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.Planner = pl
	return svc, nil
}

// Solve loads the instance at path, plans it and exports the plan.
func (s *Service) Solve(ctx context.Context, path string) (*Outcome, error) {
	prob, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	return s.SolveProblem(ctx, prob)
}

// SolveProblem plans prob and writes the configured exports.
func (s *Service) SolveProblem(ctx context.Context, prob *model.Problem) (*Outcome, error) {
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.StartPromServer(srvCtx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	res, err := s.Planner.Plan(ctx, prob, s.opts)
	if err != nil {
		tags := map[string]string{"instance": prob.Name(), "mode": string(s.opts.Mode)}
		var serr *planner.SolveError
		if errors.As(err, &serr) {
			tags["run_id"] = serr.RunID
			tags["status"] = serr.Status.String()
		}
		coremon.CaptureException(err, tags)
		return nil, err
	}
	out := &Outcome{Result: res}
	if dir := s.cfg.Export.Dir; dir != "" {
		files, err := export.WriteDir(dir, res.Plan, s.format)
		if err != nil {
			err = fmt.Errorf("export: %w", err)
			coremon.CaptureException(err, map[string]string{"run_id": res.RunID})
			return out, err
		}
		out.Files = files
		s.log.Infof("plan %s written to %s", res.RunID, dir)
	}
	return out, nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.pub != nil {
		s.pub.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.History != nil {
		errs = append(errs, s.History.Close())
	}
	return errors.Join(errs...)
}
