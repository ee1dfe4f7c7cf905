// run.go implements the 'lockstress run' command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/marusama/cyclicbarrier"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/syncore/lock"
)

// runConfig holds the parsed 'run' flags.
type runConfig struct {
	scenario    string
	workers     int
	rounds      int
	timeout     time.Duration
	trackOwners bool
	jsonLogs    bool
}

// scenarioFunc runs one scenario and returns the number of lock operations
// it completed.
type scenarioFunc func(ctx context.Context, cfg *runConfig) (int64, error)

var scenarios = map[string]scenarioFunc{
	"mutex":   mutexScenario,
	"monitor": monitorScenario,
	"named":   namedScenario,
	"thin":    thinScenario,
}

// barrierEvery is how many rounds workers run between barrier meetings.
const barrierEvery = 100

// waitSlice bounds each monitor wait so cancelled runs never hang.
const waitSlice = 50

// runCommand implements 'lockstress run'.
func runCommand(args []string) int {
	cfg, err := parseRunArgs(args, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	log := newLogger(cfg, os.Stderr)
	if err := runAll(context.Background(), cfg, log); err != nil {
		log.WithError(err).Error("stress run failed")
		return 1
	}
	return 0
}

// parseRunArgs parses the 'run' flags.
func parseRunArgs(args []string, stderr io.Writer) (*runConfig, error) {
	cfg := &runConfig{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.scenario, "scenario", "all", "mutex, monitor, named, thin or all")
	fs.IntVar(&cfg.workers, "workers", 8, "concurrent goroutines")
	fs.IntVar(&cfg.rounds, "rounds", 1000, "iterations per worker")
	fs.DurationVar(&cfg.timeout, "timeout", time.Minute, "overall time limit")
	fs.BoolVar(&cfg.trackOwners, "track-owners", false, "record acquisition sites")
	fs.BoolVar(&cfg.jsonLogs, "json", false, "JSON log output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch {
	case cfg.workers < 2:
		return nil, fmt.Errorf("-workers must be at least 2, got %d", cfg.workers)
	case cfg.rounds < 1:
		return nil, fmt.Errorf("-rounds must be positive, got %d", cfg.rounds)
	case cfg.timeout <= 0:
		return nil, fmt.Errorf("-timeout must be positive, got %v", cfg.timeout)
	}
	if _, ok := scenarios[cfg.scenario]; !ok && cfg.scenario != "all" {
		return nil, fmt.Errorf("unknown scenario %q", cfg.scenario)
	}
	return cfg, nil
}

func newLogger(cfg *runConfig, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if cfg.jsonLogs {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// selected returns the scenario names to run, in a stable order.
func (cfg *runConfig) selected() []string {
	if cfg.scenario != "all" {
		return []string{cfg.scenario}
	}
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runAll initializes the runtime and runs the selected scenarios in turn.
func runAll(ctx context.Context, cfg *runConfig, log logrus.FieldLogger) error {
	opts := []lock.Option{lock.WithOwnerTracking(cfg.trackOwners)}
	if cfg.jsonLogs {
		opts = append(opts, lock.WithJSONLogs())
	}
	if err := lock.Init(opts...); err != nil {
		return err
	}
	defer lock.Fini()

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	for _, name := range cfg.selected() {
		start := time.Now()
		ops, err := scenarios[name](ctx, cfg)
		fields := logrus.Fields{
			"scenario": name,
			"workers":  cfg.workers,
			"ops":      ops,
			"elapsed":  time.Since(start).Round(time.Millisecond),
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Error("scenario failed")
			return fmt.Errorf("%s: %w", name, err)
		}
		log.WithFields(fields).Info("scenario passed")
	}
	return nil
}

// fanOut runs body on cfg.workers goroutines released together by a cyclic
// barrier that they meet again every barrierEvery rounds.
func fanOut(ctx context.Context, cfg *runConfig, body func(ctx context.Context, worker, round int) error) error {
	barrier := cyclicbarrier.New(cfg.workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.workers; w++ {
		w := w
		g.Go(func() error {
			for r := 0; r < cfg.rounds; r++ {
				if r%barrierEvery == 0 {
					if err := barrier.Await(ctx); err != nil {
						return err
					}
				}
				if err := body(ctx, w, r); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

var errExclusion = errors.New("two owners inside a critical section")

// mutexScenario: every worker enters one mutex twice, checks it is alone,
// and releases twice.
func mutexScenario(ctx context.Context, cfg *runConfig) (int64, error) {
	m, err := lock.MutexCreate(false)
	if err != nil {
		return 0, err
	}

	var inside atomic.Int32
	var ops atomic.Int64
	err = fanOut(ctx, cfg, func(ctx context.Context, _, _ int) error {
		for i := 0; i < 2; i++ {
			if err := expectOK(lock.MutexEnter(m, lock.Infinite)); err != nil {
				return err
			}
		}
		alone := inside.Add(1) == 1
		inside.Add(-1)
		if st, err := lock.MutexRelease(m); err != nil || st != lock.ReleaseStillOwns {
			return fmt.Errorf("first release: %v %v", st, err)
		}
		if st, err := lock.MutexRelease(m); err != nil || st != lock.ReleaseSuccess {
			return fmt.Errorf("second release: %v %v", st, err)
		}
		if !alone {
			return errExclusion
		}
		ops.Add(4)
		return nil
	})
	if err != nil {
		return ops.Load(), err
	}
	return ops.Load(), expectClose(lock.MutexClose(m))
}

// monitorScenario: half the workers produce into a bounded buffer guarded by
// a monitor, the other half consume; every produced value must be consumed
// exactly once.
func monitorScenario(ctx context.Context, cfg *runConfig) (int64, error) {
	const capacity = 4

	mon, err := lock.MonitorCreate()
	if err != nil {
		return 0, err
	}
	producers := cfg.workers / 2
	total := producers * cfg.rounds
	consumers := cfg.workers - producers

	var (
		buf             []int
		produced, taken int
		sumIn, sumOut   int64
		ops             atomic.Int64
	)

	// waitUntil waits on the monitor until cond holds. The caller owns it.
	waitUntil := func(ctx context.Context, cond func() bool) error {
		for !cond() {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := lock.MonitorWait(mon, waitSlice)
			if err != nil {
				return err
			}
			if st != lock.StatusOK && st != lock.StatusTimedOut {
				return fmt.Errorf("wait: %v", st)
			}
			ops.Add(1)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < producers; p++ {
		p := p
		g.Go(func() error {
			for r := 0; r < cfg.rounds; r++ {
				if err := expectOK(lock.MonitorEnter(mon, lock.Infinite)); err != nil {
					return err
				}
				err := waitUntil(ctx, func() bool { return len(buf) < capacity })
				if err == nil {
					v := p*cfg.rounds + r + 1
					buf = append(buf, v)
					produced++
					sumIn += int64(v)
					err = lock.MonitorPulseAll(mon)
				}
				if _, rerr := lock.MonitorExit(mon); err == nil {
					err = rerr
				}
				if err != nil {
					return err
				}
				ops.Add(3)
			}
			return nil
		})
	}
	for c := 0; c < consumers; c++ {
		g.Go(func() error {
			for {
				if err := expectOK(lock.MonitorEnter(mon, lock.Infinite)); err != nil {
					return err
				}
				err := waitUntil(ctx, func() bool { return len(buf) > 0 || taken == total })
				done := taken == total
				if err == nil && !done {
					sumOut += int64(buf[0])
					buf = buf[1:]
					taken++
					err = lock.MonitorPulseAll(mon)
				}
				if _, rerr := lock.MonitorExit(mon); err == nil {
					err = rerr
				}
				if err != nil || done {
					return err
				}
				ops.Add(3)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return ops.Load(), err
	}
	if produced != total || taken != total || sumIn != sumOut {
		return ops.Load(), fmt.Errorf("produced %d, consumed %d of %d (sums %d/%d)", produced, taken, total, sumIn, sumOut)
	}
	return ops.Load(), expectClose(lock.MonitorClose(mon))
}

// namedScenario: every round each worker opens the shared name, increments
// a counter under it and closes its handle.
func namedScenario(ctx context.Context, cfg *runConfig) (int64, error) {
	const name = "lockstress/named"

	var counter int
	var ops atomic.Int64
	err := fanOut(ctx, cfg, func(ctx context.Context, _, _ int) error {
		h, _, err := lock.NamedMutexCreate(name, false)
		if err != nil {
			return err
		}
		if err := expectOK(lock.MutexEnter(h, lock.Infinite)); err != nil {
			return err
		}
		counter++
		if _, err := lock.MutexRelease(h); err != nil {
			return err
		}
		st, err := lock.MutexClose(h)
		if err != nil {
			return err
		}
		if st == lock.CloseOwned {
			return fmt.Errorf("close of an idle named mutex returned %v", st)
		}
		ops.Add(4)
		return nil
	})
	if err != nil {
		return ops.Load(), err
	}
	if want := cfg.workers * cfg.rounds; counter != want {
		return ops.Load(), fmt.Errorf("counter = %d, want %d", counter, want)
	}
	return ops.Load(), nil
}

// thinScenario: workers share one lockable object; contention inflates it.
func thinScenario(ctx context.Context, cfg *runConfig) (int64, error) {
	o := lock.NewObject()

	var inside atomic.Int32
	var ops atomic.Int64
	err := fanOut(ctx, cfg, func(ctx context.Context, _, _ int) error {
		if err := expectOK(o.Enter(lock.Infinite)); err != nil {
			return err
		}
		alone := inside.Add(1) == 1
		inside.Add(-1)
		if _, err := o.Exit(); err != nil {
			return err
		}
		if !alone {
			return errExclusion
		}
		ops.Add(2)
		return nil
	})
	return ops.Load(), err
}

func expectOK(st lock.Status, err error) error {
	if err != nil {
		return err
	}
	if st != lock.StatusOK {
		return fmt.Errorf("enter: %v", st)
	}
	return nil
}

func expectClose(st lock.CloseStatus, err error) error {
	if err != nil {
		return err
	}
	if st != lock.CloseFree {
		return fmt.Errorf("close: %v", st)
	}
	return nil
}
