// Package app wires the bot together: config, logging, storage, the
// GitHub feed client, the Telegram adapter, the relay engine, and the
// poll scheduler. All dependencies are explicit; nothing global.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/nomanoma121/github-notification-bot/internal/config"
	"github.com/nomanoma121/github-notification-bot/internal/feed"
	"github.com/nomanoma121/github-notification-bot/internal/notifier"
	"github.com/nomanoma121/github-notification-bot/internal/relay"
	"github.com/nomanoma121/github-notification-bot/internal/storage"
	kit "github.com/nomanoma121/github-notification-bot/internal/transport"
	"github.com/nomanoma121/github-notification-bot/internal/transport/telegram"
	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

const (
	defaultPollInterval = 5 * time.Minute
	// ackTimeout bounds one whole acknowledgment (delete + up to three
	// bounded side effects).
	ackTimeout = time.Minute
)

type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   storage.Store
	src     *feed.Client
	adapter *telegram.Adapter
	notif   *notifier.Service
	rec     *relay.Reconciler
	ack     *relay.AckHandler

	cron         *cron.Cron
	pollInterval time.Duration

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	pollInterval, err := config.ParseDurationOrDefault("relay.poll_interval", cfg.Relay.PollInterval, defaultPollInterval)
	if err != nil {
		return nil, err
	}
	relayCfg, err := relayConfig(cfg)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	feedTimeout, err := config.ParseDurationField("feed.timeout", cfg.Feed.Timeout)
	if err != nil {
		return nil, err
	}
	tgPollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	src, err := feed.NewClient(feed.Config{
		Token:   cfg.Feed.Token,
		BaseURL: cfg.Feed.BaseURL,
		Timeout: feedTimeout,
	}, log.With(logx.String("comp", "feed")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: tgPollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notif := notifier.New(notifier.Config{
		Target:     kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		RatePerSec: cfg.Telegram.RatePerSec,
	}, adapter, log.With(logx.String("comp", "notifier")))

	relayLog := log.With(logx.String("comp", "relay"))
	a := &App{
		mgr:          mgr,
		logSvc:       logSvc,
		log:          log,
		store:        store,
		src:          src,
		adapter:      adapter,
		notif:        notif,
		rec:          relay.NewReconciler(relayCfg, store, src, notif, relayLog),
		ack:          relay.NewAckHandler(relayCfg, store, src, notif, relayLog),
		pollInterval: pollInterval,
	}

	cl := cronLog{log: log.With(logx.String("comp", "cron"))}
	a.cron = cron.New(cron.WithLogger(cl), cron.WithChain(
		cron.Recover(cl),
		// A tick that overruns the interval delays the next one; ticks
		// never overlap.
		cron.DelayIfStillRunning(cl),
	))
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	updates := make(chan kit.Update, 64)
	if err := a.adapter.Start(runCtx, updates); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(runCtx, updates)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchConfig(runCtx)
	}()

	a.cron.Schedule(cron.Every(a.pollInterval), cron.FuncJob(func() {
		a.tick(runCtx)
	}))
	a.cron.Start()

	// First tick right away so a restart doesn't sit silent for a full
	// interval.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.tick(runCtx)
	}()

	open, err := a.store.Count(runCtx)
	if err != nil {
		a.log.Warn("store count failed", logx.Err(err))
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started",
		logx.Duration("poll_interval", a.pollInterval),
		logx.Int("open_records", open),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Stop scheduling first and let a running tick finish.
	stopped := a.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	if a.runCancel != nil {
		a.runCancel()
	}
	_ = a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	err := a.store.Close()
	a.log.Info("stopped")
	_ = a.logSvc.Close()
	return err
}

// tick runs one bounded poll-reconcile pass.
func (a *App) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, a.pollInterval)
	defer cancel()
	if err := a.rec.Tick(tctx); err != nil {
		a.log.Warn("poll tick failed", logx.Err(err))
	}
}

// dispatch is the single consumer of inbound chat updates. Acknowledgment
// handling may overlap a running tick; the store keeps rows consistent.
func (a *App) dispatch(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-updates:
			cb := up.Callback
			if up.Kind != kit.UpdateCallback || cb == nil {
				continue
			}
			token, ok := notifier.ParseAckData(cb.Data)
			if !ok {
				a.log.Trace("ignoring foreign callback", logx.String("data", cb.Data))
				continue
			}
			ev := relay.AckEvent{
				Token:      token,
				CallbackID: cb.ID,
				ChatID:     cb.ChatID,
				ThreadID:   cb.ThreadID,
				MessageID:  cb.MessageID,
			}
			// Shutdown must not abort an in-flight acknowledgment, so the
			// handler runs detached from the run context, bounded on its own.
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
			err := a.ack.Handle(hctx, ev)
			cancel()
			if err != nil {
				a.log.Error("acknowledgment failed", logx.String("token", token), logx.Err(err))
			}
		}
	}
}

// watchConfig hot-reloads what can change at runtime: log sinks/level
// and the relay tuning. Credentials and the poll interval need a restart.
func (a *App) watchConfig(ctx context.Context) {
	ch := a.mgr.Subscribe(1)
	defer a.mgr.Unsubscribe(ch)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.mgr.Watch(ctx.Done()); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-ch:
			if cfg == nil {
				continue
			}
			a.applyReload(cfg)
		}
	}
}

func (a *App) applyReload(cfg *config.Config) {
	a.logSvc.Apply(loggingConfig(cfg))

	relayCfg, err := relayConfig(cfg)
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}
	a.rec.Apply(relayCfg)
	a.ack.Apply(relayCfg)

	if pi, err := config.ParseDurationOrDefault("relay.poll_interval", cfg.Relay.PollInterval, defaultPollInterval); err == nil && pi != a.pollInterval {
		a.log.Warn("poll_interval changed; restart required to take effect",
			logx.Duration("running", a.pollInterval), logx.Duration("configured", pi))
	}
	a.log.Info("runtime config applied", logx.Duration("remind_after", relayCfg.RemindAfter))
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func relayConfig(cfg *config.Config) (relay.Config, error) {
	remindAfter, err := config.ParseDurationField("relay.remind_after", cfg.Relay.RemindAfter)
	if err != nil {
		return relay.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("relay.send_timeout", cfg.Relay.SendTimeout)
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{RemindAfter: remindAfter, SendTimeout: sendTimeout}, nil
}

// cronLog adapts logx to cron's logger contract.
type cronLog struct{ log logx.Logger }

func (c cronLog) Info(msg string, kv ...interface{}) {
	c.log.Debug(msg, kvFields(kv)...)
}

func (c cronLog) Error(err error, msg string, kv ...interface{}) {
	c.log.Warn(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		fields = append(fields, logx.Any(key, kv[i+1]))
	}
	return fields
}
