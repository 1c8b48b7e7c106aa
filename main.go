package main

import (
	"context"
	"encoding/json"
	console "github.com/asynkron/goconsole"
	"github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/cobra"
	"log"
	"minimum-discovery-simulation/impl/monitor"
	"minimum-discovery-simulation/impl/parameters"
	"minimum-discovery-simulation/impl/simulation"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	if e := newRootCommand(logger).Execute(); e != nil {
		os.Exit(1)
	}
}

func newRootCommand(logger *log.Logger) *cobra.Command {
	p := parameters.Default()
	updateDeadline := p.UpdateDeadline()
	broadcastDeadline := p.BroadcastDeadline()
	var logDrops, logUpdates bool

	cmd := &cobra.Command{
		Use:   "minsim",
		Short: "Simulates workers discovering a global minimum through a coordinator.",
		Long: `Simulates workers that sample a log-normal distribution and report their ` +
			`local minima to a coordinator over bounded links. The coordinator broadcasts ` +
			`the global minimum back. Runs until interrupted or Enter is pressed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.UpdateDeadlineNs = int(updateDeadline)
			p.BroadcastDeadlineNs = int(broadcastDeadline)
			return run(cmd.Context(), p, logDrops, logUpdates, logger)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&p.WorkerCount, "workers", p.WorkerCount, "number of workers")
	flags.Float64Var(&p.Mu, "mu", p.Mu, "mean of the underlying normal distribution")
	flags.Float64Var(&p.Sigma, "sigma", p.Sigma, "standard deviation of the underlying normal distribution")
	flags.Uint64Var(&p.Seed, "seed", p.Seed, "random seed, 0 derives one from the clock")
	flags.IntVar(&p.UpdateLinkCapacity, "update-capacity", p.UpdateLinkCapacity,
		"capacity of the update link, 0 for synchronous handoff")
	flags.IntVar(&p.BroadcastLinkCapacity, "broadcast-capacity", p.BroadcastLinkCapacity,
		"capacity of every broadcast link, 0 for synchronous handoff")
	flags.StringVar(&p.UpdateMode, "update-mode", p.UpdateMode,
		"delivery mode of worker updates: blocking, best-effort or timed")
	flags.DurationVar(&updateDeadline, "update-deadline", updateDeadline,
		"how long a worker waits for the coordinator to take an update in timed mode")
	flags.DurationVar(&broadcastDeadline, "broadcast-deadline", broadcastDeadline,
		"how long the coordinator waits for a worker to take a broadcast")
	flags.IntVar(&p.ReportInterval, "report-interval", p.ReportInterval, "rounds between status lines")
	flags.IntVar(&p.MaxRounds, "max-rounds", p.MaxRounds, "stop after this many rounds, 0 runs until interrupted")
	flags.BoolVar(&logDrops, "log-drops", false, "log every dropped message")
	flags.BoolVar(&logUpdates, "log-updates", false, "log every update a worker sends")

	return cmd
}

func run(ctx context.Context, p *parameters.Parameters, logDrops bool, logUpdates bool, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	encoded, e := json.Marshal(p)
	if e != nil {
		logger.Fatalf("Could not encode parameters: %v\n", e)
	}
	logger.Printf("Parameters: %s\n", encoded)

	system := actor.NewActorSystem()
	system.EventStream.Subscribe(
		func(event interface{}) {
			deadLetter, ok := event.(*actor.DeadLetterEvent)
			if ok {
				logger.Printf(
					"Dead letter detected. To: %s\n",
					deadLetter.PID.String())
			}
		},
	)

	var monitorOptions []monitor.Option
	if logDrops {
		monitorOptions = append(monitorOptions, monitor.WithDropLogging())
	}
	if logUpdates {
		monitorOptions = append(monitorOptions, monitor.WithUpdateLogging())
	}

	sim, e := simulation.New(
		p,
		simulation.WithLogger(logger),
		simulation.WithActorSystem(system),
		simulation.WithMonitorOptions(monitorOptions...),
	)
	if e != nil {
		return e
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Without a console (stdin at EOF) only a signal stops the run.
		if _, e := console.ReadLine(); e == nil {
			cancel()
		}
	}()

	logger.Println("Running simulation...")
	runErr := sim.Run(ctx)

	if stats, e := sim.Stats(time.Second); e == nil {
		logger.Printf(
			"Global minimum: %v after %d rounds, %d updates sent, %d messages dropped\n",
			stats.GlobalMinimum, sim.Round(), stats.UpdatesSent, stats.Dropped)
	}
	if e := sim.Close(); e != nil {
		logger.Printf("Could not stop the monitor: %v\n", e)
	}

	if runErr != nil {
		logger.Printf("Simulation failed: %v\n", runErr)
	}
	return runErr
}
