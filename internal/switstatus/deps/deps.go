// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package deps builds the collaborators the swit-status commands share
// from one configuration.
package deps

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/internal/switstatus/config"
	"github.com/innovationmech/switstatus/pkg/control"
	"github.com/innovationmech/switstatus/pkg/datasource"
	"github.com/innovationmech/switstatus/pkg/logger"
	"github.com/innovationmech/switstatus/pkg/monitoring"
	"github.com/innovationmech/switstatus/pkg/status"
	"github.com/innovationmech/switstatus/pkg/status/checks"
	"github.com/innovationmech/switstatus/pkg/sysinfo"
	"github.com/innovationmech/switstatus/pkg/taskqueue"
	kafkaq "github.com/innovationmech/switstatus/pkg/taskqueue/kafka"
	rabbitq "github.com/innovationmech/switstatus/pkg/taskqueue/rabbitmq"
	redisq "github.com/innovationmech/switstatus/pkg/taskqueue/redis"
	"github.com/innovationmech/switstatus/pkg/tracing"
)

var (
	// ErrNotLoaded is returned when the store has no configuration yet.
	ErrNotLoaded = errors.New("configuration not loaded")
	// ErrServiceInitialization wraps failures while building a dependency.
	ErrServiceInitialization = errors.New("service initialization failed")
)

// Dependencies holds everything the commands need, built from one Store.
type Dependencies struct {
	Store   *config.Store
	Tracing tracing.TracingManager
	// Metrics is nil when metrics are disabled.
	Metrics *status.PrometheusMetricsCollector
	Sentry  *monitoring.SentryManager

	Counter  *ReloadingCounter
	Swap     *sysinfo.Inspector
	Control  *control.Registry
	Hub      *control.Hub
	natsConn *nats.Conn

	Registry   *status.Registry
	Loader     *status.Loader
	Runner     *status.Runner
	Broker     taskqueue.Broker
	Backend    taskqueue.Backend
	Queue      *taskqueue.Queue
	Dispatcher *status.Dispatcher
}

// NewDependencies wires the checks, the orchestrators and the task queue
// described by the store's current configuration.
func NewDependencies(ctx context.Context, store *config.Store) (*Dependencies, error) {
	cfg := store.Current()
	if cfg == nil {
		return nil, ErrNotLoaded
	}

	d := &Dependencies{
		Store:    store,
		Swap:     sysinfo.NewInspector(),
		Control:  control.NewRegistry(),
		Registry: status.NewRegistry(),
	}

	tm := tracing.NewTracingManager()
	tracingCfg := cfg.Tracing
	if err := tm.Initialize(ctx, &tracingCfg); err != nil {
		return nil, fmt.Errorf("%w: tracing - %v", ErrServiceInitialization, err)
	}
	d.Tracing = tm

	sentryCfg := cfg.Sentry
	d.Sentry = monitoring.NewSentryManager(&sentryCfg)
	if err := d.Sentry.Initialize(ctx); err != nil {
		d.closeQuietly()
		return nil, fmt.Errorf("%w: sentry - %v", ErrServiceInitialization, err)
	}

	if cfg.Metrics.Enabled {
		m, err := status.NewPrometheusMetricsCollector(&status.PrometheusMetricsConfig{Namespace: cfg.Metrics.Namespace})
		if err != nil {
			return nil, fmt.Errorf("%w: metrics - %v", ErrServiceInitialization, err)
		}
		d.Metrics = m
	}

	d.Counter = &ReloadingCounter{}
	d.Counter.cur.Store(d.newDatasource(cfg))

	if err := d.setupControl(cfg); err != nil {
		d.closeQuietly()
		return nil, err
	}

	if err := checks.Register(d.Registry, checks.Dependencies{
		Counter: d.Counter,
		Swap:    d.Swap,
		Control: d.Control,
	}); err != nil {
		d.closeQuietly()
		return nil, fmt.Errorf("%w: checks - %v", ErrServiceInitialization, err)
	}
	d.Loader = status.NewLoader(d.Registry, status.WithResolver(store.Resolver()))
	d.Runner = status.NewRunner(d.Loader, store, d.RunOptions()...)

	if err := d.setupQueue(ctx, cfg); err != nil {
		d.closeQuietly()
		return nil, err
	}
	d.Queue = taskqueue.NewQueue(d.Broker, d.Backend)
	d.Dispatcher = status.NewDispatcher(d.Loader, store, d.Queue, d.RunOptions()...)

	store.OnReload(d.applyReload)

	logger.GetLogger().Info("successfully initialized all dependencies",
		zap.String("broker", cfg.Queue.Broker),
		zap.String("backend", cfg.Queue.Backend),
		zap.String("control", cfg.Control.Type),
		zap.Strings("kinds", d.Registry.Kinds()))
	return d, nil
}

// RunOptions are the options shared by the runner, the dispatcher and the
// worker task handler.
func (d *Dependencies) RunOptions() []status.Option {
	opts := []status.Option{
		status.WithTracing(d.Tracing),
		status.WithCheckTimeoutFunc(d.checkTimeout),
	}
	if d.Metrics != nil {
		opts = append(opts, status.WithMetrics(d.Metrics))
	}
	return opts
}

func (d *Dependencies) checkTimeout() time.Duration {
	if cfg := d.Store.Current(); cfg != nil {
		return cfg.ServiceStatus.CheckTimeout
	}
	return 0
}

func (d *Dependencies) newDatasource(cfg *config.Config) *datasource.Manager {
	return datasource.NewManager(cfg.Databases,
		datasource.WithEntities(cfg.EntityTables()),
		datasource.WithTracing(d.Tracing))
}

func (d *Dependencies) setupControl(cfg *config.Config) error {
	switch cfg.Control.Type {
	case config.ControlNATS:
		conn, err := control.Connect(cfg.Control.NATS, "swit-status")
		if err != nil {
			return fmt.Errorf("%w: control - %v", ErrServiceInitialization, err)
		}
		d.natsConn = conn
		d.Control.Register(cfg.Control.App, control.NewNATSPinger(conn, cfg.Control.NATS))
	default:
		d.Hub = control.NewHub()
		d.Control.Register(cfg.Control.App, d.Hub)
	}
	return nil
}

func (d *Dependencies) setupQueue(ctx context.Context, cfg *config.Config) error {
	q := cfg.Queue

	var redisStore *redisq.Store
	if q.Broker == config.QueueRedis || q.Backend == config.QueueRedis {
		s, err := redisq.Open(ctx, q.Redis)
		if err != nil {
			return fmt.Errorf("%w: redis - %v", ErrServiceInitialization, err)
		}
		redisStore = s
	}

	switch q.Backend {
	case config.QueueRedis:
		d.Backend = redisStore
	default:
		d.Backend = taskqueue.NewMemoryBackend()
	}

	switch q.Broker {
	case config.QueueRedis:
		d.Broker = redisStore
	case config.QueueKafka:
		b, err := kafkaq.New(q.Kafka)
		if err != nil {
			return fmt.Errorf("%w: kafka - %v", ErrServiceInitialization, err)
		}
		d.Broker = b
	case config.QueueRabbitMQ:
		b, err := rabbitq.Dial(q.RabbitMQ)
		if err != nil {
			return fmt.Errorf("%w: rabbitmq - %v", ErrServiceInitialization, err)
		}
		d.Broker = b
	default:
		d.Broker = taskqueue.NewMemoryBroker(q.MemorySize)
	}
	return nil
}

// NewWorker builds a worker that executes check tasks under name.
func (d *Dependencies) NewWorker(name string) *taskqueue.Worker {
	concurrency := 1
	if cfg := d.Store.Current(); cfg != nil {
		concurrency = cfg.Queue.Concurrency
	}
	w := taskqueue.NewWorker(d.Broker, d.Backend,
		taskqueue.WithWorkerName(name),
		taskqueue.WithConcurrency(concurrency),
		taskqueue.WithFailureHook(d.reportTaskFailure))
	w.Handle(status.TaskName, status.TaskHandler(d.Registry, d.RunOptions()...))
	return w
}

// reportTaskFailure sends a failed check task to Sentry. Panics are only
// reported when capture_panics is set.
func (d *Dependencies) reportTaskFailure(_ context.Context, f taskqueue.Failure) {
	if f.Panicked && !d.Sentry.CapturesPanics() {
		return
	}
	level := sentry.LevelError
	if f.Panicked {
		level = sentry.LevelFatal
	}
	d.Sentry.Capture(monitoring.Report{
		Err:   f.Err,
		Level: level,
		Tags: map[string]string{
			"component": "worker",
			"task":      f.Task.Name,
			"task_id":   f.Task.ID,
			"worker":    f.Worker,
		},
		Extras: map[string]any{"traceback": f.Traceback},
	})
}

// RunWorker answers control pings as name and executes check tasks until
// ctx is done.
func (d *Dependencies) RunWorker(ctx context.Context, name string) error {
	leave, err := d.joinControl(name)
	if err != nil {
		return err
	}
	defer leave()
	return d.NewWorker(name).Run(ctx)
}

func (d *Dependencies) joinControl(name string) (func(), error) {
	if d.natsConn != nil {
		cfg := d.Store.Current().Control.NATS
		r, err := control.Serve(d.natsConn, cfg, name)
		if err != nil {
			return nil, err
		}
		return func() { _ = r.Stop() }, nil
	}
	d.Hub.Join(name)
	return func() { d.Hub.Leave(name) }, nil
}

// applyReload rebuilds what a configuration change invalidates. Check
// lists need nothing: they are read from the store on every run.
func (d *Dependencies) applyReload(old, cur *config.Config) {
	log := logger.GetLogger()
	if old.Log != cur.Log {
		if err := logger.Configure(cur.Log); err != nil {
			log.Warn("apply log configuration failed", zap.Error(err))
		}
	}
	if !reflect.DeepEqual(old.Databases, cur.Databases) || !reflect.DeepEqual(old.Entities, cur.Entities) {
		prev := d.Counter.cur.Swap(d.newDatasource(cur))
		if err := prev.Close(); err != nil {
			log.Warn("close previous databases failed", zap.Error(err))
		}
		log.Info("database configuration reloaded", zap.Strings("aliases", d.Counter.cur.Load().Aliases()))
	}
	if !reflect.DeepEqual(old.Queue, cur.Queue) || !reflect.DeepEqual(old.Control, cur.Control) {
		log.Warn("queue and control changes take effect after a restart")
	}
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Queue != nil {
		errs = append(errs, d.Queue.Close())
	} else {
		if d.Broker != nil {
			errs = append(errs, d.Broker.Close())
		}
		if d.Backend != nil {
			errs = append(errs, d.Backend.Close())
		}
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.Counter != nil {
		if m := d.Counter.cur.Load(); m != nil {
			errs = append(errs, m.Close())
		}
	}
	if d.Tracing != nil {
		errs = append(errs, d.Tracing.Shutdown(context.Background()))
	}
	errs = append(errs, d.Sentry.Close())
	return errors.Join(errs...)
}

func (d *Dependencies) closeQuietly() {
	if err := d.Close(); err != nil {
		logger.GetLogger().Debug("cleanup after failed initialization", zap.Error(err))
	}
}

// ReloadingCounter counts entities on the datasource of the current
// configuration.
type ReloadingCounter struct {
	cur atomic.Pointer[datasource.Manager]
}

// Count implements checks.EntityCounter.
func (r *ReloadingCounter) Count(ctx context.Context, entity, alias string) (int64, string, error) {
	return r.cur.Load().Count(ctx, entity, alias)
}
