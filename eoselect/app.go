package main

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nci/eoselect/metrics"
	"github.com/nci/eoselect/selection"
	"github.com/nci/eoselect/store"
	"github.com/nci/eoselect/utils"
)

// app holds everything a command needs, built from the config file.
type app struct {
	config   *utils.Config
	logger   *zap.SugaredLogger
	store    store.Store
	selector *selection.Selector
	files    *utils.FileResolver

	metricsLogger metrics.Logger
	observers     []metrics.Observer
	registry      *prometheus.Registry

	closers []func() error
}

func newApp(confPath string, verbose bool) (*app, error) {
	config := &utils.Config{}
	if err := config.LoadConfigFile(confPath); err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(config.LogLevel, verbose)
	if err != nil {
		return nil, errors.Wrapf(utils.ErrInvalidConfig, "log_level: %v", err)
	}

	a := &app{
		config: config,
		logger: logger,
		files:  utils.NewFileResolver(os.Getenv(utils.DataPathEnv), filepath.Dir(confPath)),
	}
	if err := a.openStore(); err != nil {
		a.close()
		return nil, err
	}

	selConfig, err := selection.ConfigFrom(config.Selection)
	if err != nil {
		a.close()
		return nil, err
	}
	a.selector = selection.NewSelector(a.store, selConfig, logger)
	a.initMetrics()
	return a, nil
}

func (a *app) openStore() error {
	conf := a.config.Store
	switch conf.Driver {
	case utils.DriverFixture:
		path, err := a.files.Resolve(conf.Fixture)
		if err != nil {
			return err
		}
		s, err := store.LoadFixtureFile(path)
		if err != nil {
			return err
		}
		a.logger.Debugw("loaded fixture", utils.FieldPath, path, utils.FieldCount, s.Len())
		a.store = s
	case utils.DriverPostgres:
		db, err := store.OpenPostgres(conf.DSN, conf.Pool, conf.Limit)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.store = store.NewPostgresStore(db, a.logger)
	default:
		return errors.Wrapf(utils.ErrInvalidConfig, "unknown store driver %q", conf.Driver)
	}
	return nil
}

func (a *app) initMetrics() {
	conf := a.config.Metrics
	if len(conf.LogDir) > 0 {
		if conf.LogDir == "-" {
			a.metricsLogger = metrics.NewZapLogger(a.logger)
		} else {
			fl := metrics.NewFileLogger(conf.LogDir, conf.MaxLogFileSize, conf.MaxLogFiles, a.logger)
			a.metricsLogger = fl
			a.closers = append(a.closers, func() error {
				fl.Close()
				return nil
			})
		}
	}

	if conf.Prometheus {
		a.registry = prometheus.NewRegistry()
		a.observers = append(a.observers, metrics.NewPrometheusObserver(a.registry))
	}
}

func (a *app) newCollector() *metrics.MetricsCollector {
	return metrics.NewMetricsCollector(a.metricsLogger, a.observers...)
}

// finish logs the record of one command with the outcome of err.
func (a *app) finish(mc *metrics.MetricsCollector, err error) {
	mc.Info.Outcome = outcomeOf(err)
	if err != nil {
		mc.Info.Error = err.Error()
	}
	mc.Log()

	if a.registry != nil && a.config.Metrics.TextFile != "" {
		if werr := metrics.WriteTextfile(a.config.Metrics.TextFile, a.registry); werr != nil {
			a.logger.Errorw("writing metrics textfile", utils.FieldPath, a.config.Metrics.TextFile, utils.FieldError, werr)
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnw("closing", utils.FieldError, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, selection.ErrUnknownIdentifier):
		return metrics.OutcomeUnknown
	case errors.Is(err, selection.ErrInsufficientResults):
		return metrics.OutcomeInsufficient
	case errors.Is(err, store.ErrStoreUnavailable):
		return metrics.OutcomeUnavailable
	case isInvalidRequest(err):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}
