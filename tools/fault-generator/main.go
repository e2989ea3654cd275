package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/faultline/internal/pkg/logger"
	"github.com/V4T54L/faultline/pkg/reporter"
)

// generators produce a spread of fault shapes: plain, wrapped, nested and
// panics.
var generators = []func(worker, seq int) error{
	func(worker, seq int) error {
		return fmt.Errorf("generated fault %d from worker %d", seq, worker)
	},
	func(worker, seq int) error {
		return fmt.Errorf("load config: %w", &fs.PathError{Op: "open", Path: "/etc/app.yml", Err: fs.ErrNotExist})
	},
	func(worker, seq int) error {
		return fmt.Errorf("query orders: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	},
	func(worker, seq int) (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = &reporter.PanicError{Value: v}
			}
		}()
		var m map[string]int
		m["seq"] = seq
		return nil
	},
}

func main() {
	cfg, err := reporter.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "supersecretkey"
	}

	flag.StringVar(&cfg.Endpoint, "url", cfg.Endpoint, "Collector endpoint")
	flag.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key sent as X-ApiKey")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	flag.StringVar(&cfg.SpoolDir, "spool", cfg.SpoolDir, "Spool folder")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the run")
	rps := flag.Int("rps", 100, "Reports per second limit")
	flag.Parse()

	log := logger.New(cfg.LogLevel)
	log.Info("Starting fault generator",
		"url", cfg.Endpoint,
		"concurrency", *concurrency,
		"duration", duration.String(),
		"rps", *rps,
	)

	client := reporter.NewFromConfig(cfg,
		reporter.WithLogger(log),
		reporter.WithApplicationVersion("fault-generator"),
		reporter.WithRateLimit(float64(*rps), *rps),
	)
	runID := uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), max(*rps/10, 1))
	var counts sync.Map
	var total atomic.Int64
	var tally sync.WaitGroup

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for seq := 0; ; seq++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				gen := generators[(worker+seq)%len(generators)]
				d := client.Send(gen(worker, seq),
					reporter.WithTags("fault-generator", fmt.Sprintf("worker-%d", worker)),
					reporter.WithCustomData(map[string]any{"run": runID, "seq": seq}),
					reporter.WithUser(&reporter.UserIdentity{Identifier: fmt.Sprintf("worker-%d", worker), IsAnonymous: true}),
				)
				total.Add(1)
				tally.Add(1)
				go func() {
					defer tally.Done()
					<-d.Done()
					n, _ := counts.LoadOrStore(d.Outcome(), new(atomic.Int64))
					n.(*atomic.Int64).Add(1)
				}()
			}
		}(i)
	}
	wg.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := client.Close(closeCtx); err != nil {
		log.Warn("Some reports were still in flight", "error", err)
	}
	tally.Wait()

	attrs := []any{"run", runID, "total", total.Load()}
	counts.Range(func(k, v any) bool {
		attrs = append(attrs, string(k.(reporter.Outcome)), v.(*atomic.Int64).Load())
		return true
	})
	log.Info("Fault generator finished", attrs...)
}
