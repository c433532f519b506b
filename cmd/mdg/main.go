package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/mdg"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/recorder"
	"tradecore/internal/schema"
)

// mdg writes a deterministic paper session into recorder segments, so the
// trader can replay it with feed.source=replay.
func main() {
	configPath := flag.String("config", "config/trader.json", "Path to JSON config")
	outDir := flag.String("out", "var/events", "Segment output directory")
	steps := flag.Int("steps", 10_000, "Number of generator steps")
	interval := flag.Duration("interval", 0, "Simulated time between steps (default: feed.interval)")
	start := flag.String("start", "", "RFC3339 start time (default: now)")
	flag.Parse()

	if *steps <= 0 {
		logs.Errorf("steps must be > 0")
		os.Exit(1)
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("load config %s, err: %+v", *configPath, err)
		os.Exit(1)
	}
	at := schema.Now()
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			logs.Errorf("parse start %q, err: %+v", *start, err)
			os.Exit(1)
		}
		at = schema.FromTime(t)
	}
	step := *interval
	if step <= 0 {
		step = loaded.File.Feed.Interval.Std()
	}

	if err := generate(loaded, *outDir, *steps, at, step); err != nil {
		logs.Errorf("generate, err: %+v", err)
		os.Exit(1)
	}
}

func generate(loaded ops.Loaded, dir string, steps int, at schema.Timeval, step time.Duration) error {
	gen, err := mdg.NewGenerator(loaded.Registry, loaded.File.Feed.Generator)
	if err != nil {
		return err
	}
	norm := mdg.NewNormalizer(loaded.Registry, schema.FamilyCurrent)

	w, err := recorder.NewWriter(recorder.Config{Dir: dir, QueueSize: 1 << 16})
	if err != nil {
		return err
	}
	if err := w.Start(context.Background()); err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	var seq uint64
	for i := 0; i < steps; i++ {
		for _, tick := range gen.Next(at) {
			seq++
			ev, err := norm.Normalize(seq, tick)
			if err != nil {
				logs.Warnf("mdg: normalize %s, err: %+v", tick.Symbol, err)
				continue
			}
			for {
				err := w.Record(ev)
				if err == nil {
					break
				}
				if err != recorder.ErrQueueFull {
					_ = w.Close()
					return err
				}
				metrics.IncQueueDrop()
				time.Sleep(time.Millisecond)
			}
			metrics.ObserveEvent(ev.Header)
		}
		at = at.Add(step)
	}
	if err := w.Close(); err != nil {
		return err
	}

	s := metrics.Snapshot()
	logs.Infof("mdg: wrote %d events to %s, by kind %v, queue waits %d", w.Written(), dir, s.EventCounts, s.QueueDrops)
	return nil
}
