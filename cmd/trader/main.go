package main

import (
	"context"
	"flag"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tradecore/internal/adapter"
	"tradecore/internal/alert"
	"tradecore/internal/bus"
	"tradecore/internal/core"
	"tradecore/internal/journal"
	"tradecore/internal/mdg"
	"tradecore/internal/obs"
	"tradecore/internal/og"
	"tradecore/internal/ops"
	"tradecore/internal/recorder"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/seqno"
	"tradecore/internal/sim"
	"tradecore/internal/state"
	"tradecore/internal/timer"
	"tradecore/pkg/conn"
)

const statsInterval = 15 * time.Second

type options struct {
	probeEvery  time.Duration
	probeSymbol string
}

func main() {
	configPath := flag.String("config", "config/trader.json", "Path to JSON config")
	probeEvery := flag.Duration("probe-interval", 0, "Place or cancel a probe order at this period (0=off)")
	probeSymbol := flag.String("probe-symbol", "", "Probe symbol (default: first configured symbol)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("load config %s, err: %+v", *configPath, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sys.Shutdown()
		logs.Infof("shutdown signal received")
		cancel()
	}()

	res, err := run(ctx, loaded, options{probeEvery: *probeEvery, probeSymbol: *probeSymbol})
	cancel()
	if err != nil {
		logs.Errorf("trader failed, err: %+v", err)
		os.Exit(1)
	}
	logs.Infof("trader finished: %s (%s), iterations %d, dropped %d", res.Status, res.Reason, res.Iterations, res.Dropped)
	if res.Status == schema.StopFailure {
		os.Exit(2)
	}
}

func run(ctx context.Context, loaded ops.Loaded, opt options) (core.RunResult, error) {
	file := loaded.File
	reg := loaded.Registry
	runID := uuid.NewString()
	logs.Infof("run %s: mode %s, %d venues, %d symbols", runID, loaded.Mode, reg.VenueCount(), reg.SymbolCount())

	if file.Profiling.ServerAddress != "" {
		profiler, err := startProfiler(file.Profiling, loaded.Mode)
		if err != nil {
			return core.RunResult{}, err
		}
		defer func() { _ = profiler.Stop() }()
	}

	alerts, closeAlerts, err := buildAlerts(file.Alerts, runID)
	if err != nil {
		return core.RunResult{}, err
	}
	defer closeAlerts()

	metrics := obs.NewMetrics()
	d := core.NewDispatchers()
	sched := timer.NewScheduler(schema.Now(), d.Time)
	book := adapter.NewTopOfBook(reg.SymbolCount())
	d.Market.Add("book", book)

	seqOpts := []seqno.Option{seqno.WithClock(sched.Now)}
	if file.Seqno.Store != "" {
		store, err := seqno.OpenPebbleStore(file.Seqno.Store, nil, true)
		if err != nil {
			return core.RunResult{}, err
		}
		defer func() { _ = store.Close() }()
		seqOpts = append(seqOpts, seqno.WithStore(store))
	}
	seq, err := seqno.New(loaded.Seqno, seqOpts...)
	if err != nil {
		return core.RunResult{}, err
	}

	engine := risk.NewEngine(loaded.Risk)
	for id, limits := range loaded.SymbolLimits {
		engine.SetSymbolLimits(id, limits)
	}
	mgr, err := og.NewManager(loaded.Manager, og.Deps{
		Registry: reg,
		Sequence: seq,
		Risk:     engine,
		Guard:    og.NewRejectGuard(loaded.Threshold, loaded.Policy, alerts),
		Book:     book,
		Orders:   d.Order,
		Alerts:   alerts,
		Metrics:  metrics,
		Clock:    sched.Now,
	})
	if err != nil {
		return core.RunResult{}, err
	}

	pumps, err := attachTransports(loaded, mgr, book, d, sched)
	if err != nil {
		return core.RunResult{}, err
	}

	positions := state.NewPositionReducer()
	if path := file.Snapshot.Path; path != "" {
		if _, err := os.Stat(path); err == nil {
			snap, err := state.ReadSnapshot(path)
			if err != nil {
				return core.RunResult{}, err
			}
			positions.ApplySnapshot(snap)
			logs.Infof("positions restored from %s, %d symbols", path, positions.Count())
		}
	}
	d.Order.Add("positions", positions)

	if file.Journal.DSN != "" {
		j, closeJournal, err := openJournal(ctx, file.Journal, runID, reg)
		if err != nil {
			return core.RunResult{}, err
		}
		defer closeJournal()
		d.Order.Add("journal", j)
	}

	coord, err := core.New(core.Deps{
		Registry:    reg,
		Dispatchers: d,
		Scheduler:   sched,
		Halts:       mgr,
		Pumps:       pumps,
		Metrics:     metrics,
	})
	if err != nil {
		return core.RunResult{}, err
	}

	stats := timer.Every(statsInterval, 0)
	coord.AddTimer(stats)
	d.Time.AddFunc("stats", func(u timer.TimeUpdate) {
		if u.Timer == stats {
			logMetrics(metrics.Snapshot())
		}
	})
	if path := file.Snapshot.Path; path != "" && file.Snapshot.Interval > 0 {
		snapTimer := timer.Every(file.Snapshot.Interval.Std(), 0)
		coord.AddTimer(snapTimer)
		d.Time.AddFunc("snapshot", func(u timer.TimeUpdate) {
			if u.Timer == snapTimer {
				writeSnapshot(path, positions, u.At, reg)
			}
		})
	}

	var p *probe
	if opt.probeEvery > 0 && loaded.Mode != og.ModeNone {
		if p, err = buildProbe(opt, mgr, book, reg); err != nil {
			return core.RunResult{}, err
		}
		coord.AddTimer(p.timer)
		d.Time.AddFunc("probe", p.onTime)
		d.Order.AddFunc("probe", p.onOrder)
	}

	src, closeSource, err := openSource(ctx, file, reg, metrics, sched)
	if err != nil {
		return core.RunResult{}, err
	}
	res := coord.Run(ctx, src)
	closeSource()

	mgr.CancelAll()
	if p != nil {
		p.summary()
	}
	if path := file.Snapshot.Path; path != "" {
		writeSnapshot(path, positions, coord.Now(), reg)
	}
	logMetrics(metrics.Snapshot())
	return res, nil
}

func startProfiler(cfg ops.ProfilingConfig, mode og.Mode) (*pyroscope.Profiler, error) {
	name := cfg.ApplicationName
	if name == "" {
		name = "tradecore.trader"
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.ServerAddress,
		Tags:            map[string]string{"mode": mode.String()},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return profiler, nil
}

func buildAlerts(cfg ops.AlertConfig, runID string) (alert.Alerter, func(), error) {
	sinks := alert.Fanout{alert.LogSink{}}
	var closers []func()
	if cfg.LogFile != "" {
		zs, err := alert.NewZapFileSink(cfg.LogFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open alert log")
		}
		sinks = append(sinks, zs)
		closers = append(closers, func() { _ = zs.Sync() })
	}
	if len(cfg.KafkaBrokers) > 0 {
		topic := cfg.KafkaTopic
		if topic == "" {
			topic = "trader.alerts"
		}
		ks := alert.NewKafkaSink(alert.NewKafkaWriter(cfg.KafkaBrokers, topic), 1024, 5*time.Second)
		sinks = append(sinks, ks)
		closers = append(closers, func() {
			if err := ks.Close(); err != nil {
				logs.Warnf("close kafka alert sink, err: %+v", err)
			}
		})
	}
	return alert.WithRunID(runID, sinks), func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func attachTransports(loaded ops.Loaded, mgr *og.Manager, book adapter.Book, d *core.Dispatchers, sched *timer.Scheduler) ([]core.Pump, error) {
	switch loaded.Mode {
	case og.ModeNone:
		return nil, nil
	case og.ModeLive:
		return nil, errors.New("live mode needs a venue session; only sim transports are built in")
	}
	var pumps []core.Pump
	for _, v := range loaded.Venues {
		tr, err := sim.New(v.Sim, sim.Deps{Book: book, Callbacks: mgr, Clock: sched.Now})
		if err != nil {
			return nil, errors.Wrapf(err, "sim venue %s", v.Name)
		}
		if err := mgr.AddTransport(v.ID, tr); err != nil {
			return nil, err
		}
		d.Market.Add("sim."+v.Name, tr)
		pumps = append(pumps, tr)
	}
	return pumps, nil
}

func openJournal(ctx context.Context, cfg ops.JournalConfig, runID string, reg *schema.Registry) (*journal.Journal, func(), error) {
	db, err := conn.OpenPostgres(ctx, conn.Postgres{DSN: cfg.DSN, MaxOpenConns: 4})
	if err != nil {
		return nil, nil, err
	}
	sink, err := journal.NewGormSink(ctx, db, cfg.BatchSize)
	if err != nil {
		_ = conn.ClosePostgres(db)
		return nil, nil, err
	}
	j, err := journal.New(journal.Config{
		RunID:         runID,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval.Std(),
	}, sink, reg)
	if err != nil {
		_ = conn.ClosePostgres(db)
		return nil, nil, err
	}
	if err := j.Start(); err != nil {
		_ = conn.ClosePostgres(db)
		return nil, nil, err
	}
	return j, func() {
		j.Close()
		_ = conn.ClosePostgres(db)
	}, nil
}

func buildProbe(opt options, mgr *og.Manager, book adapter.Book, reg *schema.Registry) (*probe, error) {
	sym, ok := reg.SymbolAt(0)
	if opt.probeSymbol != "" {
		id, found := reg.SymbolIDByName(opt.probeSymbol)
		if !found {
			return nil, errors.Errorf("probe symbol %s not configured", opt.probeSymbol)
		}
		sym, ok = reg.Symbol(id)
	}
	if !ok {
		return nil, errors.New("probe needs a symbol")
	}
	return newProbe(mgr, book, sym.ID, sym.VenueID, opt.probeEvery), nil
}

// openSource builds the coordinator input: the paper feed through a bus
// queue, optionally recorded, or a replay cursor.
func openSource(ctx context.Context, file ops.File, reg *schema.Registry, metrics *obs.Metrics, sched *timer.Scheduler) (core.Source, func(), error) {
	if file.Feed.Source == ops.FeedReplay {
		cursor, err := recorder.OpenCursor(recorder.CursorConfig{Dir: file.Feed.ReplayDir, Speed: file.Feed.ReplaySpeed})
		if err != nil {
			return nil, nil, err
		}
		logs.Infof("replaying %s at speed %v", file.Feed.ReplayDir, file.Feed.ReplaySpeed)
		return cursor, func() { _ = cursor.Close() }, nil
	}

	gen, err := mdg.NewGenerator(reg, file.Feed.Generator)
	if err != nil {
		return nil, nil, err
	}
	queue := bus.NewQueue(file.Feed.QueueSize, metrics)
	feed := mdg.NewFeed(gen, mdg.NewNormalizer(reg, schema.FamilyCurrent), queue, file.Feed.Interval.Std())

	feedCtx, stopFeed := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = feed.Run(feedCtx)
		queue.Close()
	}()

	var src core.Source = queue
	var w *recorder.Writer
	if file.Recorder.Dir != "" {
		w, err = recorder.NewWriter(recorder.Config{
			Dir:                file.Recorder.Dir,
			SegmentMaxBytes:    file.Recorder.SegmentMaxBytes,
			SegmentMaxDuration: file.Recorder.SegmentMaxAge.Std(),
		})
		if err == nil {
			err = w.Start(ctx)
		}
		if err != nil {
			stopFeed()
			<-done
			return nil, nil, err
		}
		src = recorder.NewTee(queue, w)
	}

	return src, func() {
		stopFeed()
		<-done
		if w != nil {
			if err := w.Close(); err != nil {
				logs.Errorf("close recorder, err: %+v", err)
			}
			logs.Infof("recorded %d events, dropped %d", w.Written(), w.Dropped())
		}
		if n := feed.Dropped(); n > 0 {
			logs.Warnf("paper feed dropped %d events", n)
		}
	}, nil
}

func writeSnapshot(path string, positions *state.PositionReducer, at schema.Timeval, reg *schema.Registry) {
	if err := state.WriteSnapshot(path, positions.Snapshot(at, reg)); err != nil {
		logs.Errorf("write snapshot %s, err: %+v", path, err)
	}
}

func logMetrics(s obs.Snapshot) {
	logs.Infof("stats: events %v, drops %v, results %v, rejects %d, timers %d, queue drops %d",
		s.EventCounts, s.Drops, s.ResultCounts, s.Rejects, s.TimerFires, s.QueueDrops)
	logs.Infof("stats: dispatch avg %s max %s, ack avg %s max %s, feed avg %s",
		s.DispatchLatency.Avg, s.DispatchLatency.Max, s.AckLatency.Avg, s.AckLatency.Max, s.EventLatency.Avg)
}
