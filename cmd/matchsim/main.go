// Command matchsim runs a scripted fake match against which the daemon
// can be pointed: it serves the live client endpoints, writes a
// discovery lockfile, and plays a short skirmish on loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riftfeed/riftfeed/internal/simulator"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:2999", "listen address for the simulated client")
		lockfile = flag.String("lockfile", "", "path for the discovery lockfile (empty disables)")
		speed    = flag.Float64("speed", 1, "script playback speed multiplier")
		loop     = flag.Bool("loop", false, "replay the script until interrupted")
		pause    = flag.Duration("pause", 5*time.Second, "pause between replays when looping")
		verbose  = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	log := logger.Named("matchsim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *lockfile, *speed, *loop, *pause, log); err != nil && err != context.Canceled {
		log.Error("matchsim failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, lockfile string, speed float64, loop bool, pause time.Duration, log logger.Logger) error {
	match := simulator.NewMatch()

	opts := []simulator.Option{simulator.WithAddr(addr), simulator.WithLogger(log)}
	if lockfile != "" {
		opts = append(opts, simulator.WithLockfile(lockfile))
	}

	sim := simulator.New(match, opts...)
	if err := sim.Start(); err != nil {
		return err
	}
	defer sim.Stop()

	for {
		log.Info("playing match script", logger.Float64("speed", speed))
		if err := simulator.Play(ctx, match, simulator.DefaultScript(), speed); err != nil {
			return err
		}
		if !loop {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
		match.Reset()
	}

	log.Info("script finished, serving final state until interrupted")
	<-ctx.Done()
	return nil
}
