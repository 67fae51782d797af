package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pricesim/engine"
	"pricesim/feed"
	"pricesim/market"
	"pricesim/runner"
	"pricesim/scheduler"
	"pricesim/sink"
	"pricesim/strategy"
)

func main() {
	duration := flag.Duration("duration", 3*time.Minute, "total simulated run time")
	step := flag.Duration("step", 100*time.Millisecond, "simulation time step")
	seed := flag.Int64("seed", 42, "seed for the background flow generator")
	tick := flag.Float64("tick", 0.01, "tick size")
	mid := flag.Float64("mid", 20.00, "starting mid price")
	capital := flag.Float64("capital", 1_000_000, "strategy capital limit")
	logDir := flag.String("logs", "logs", "directory for csv output")
	feedAddr := flag.String("feed", "", "listen address for the live feed, empty disables it")
	pace := flag.Bool("pace", false, "sleep one step of wall time per tick")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	csv, err := sink.NewCsv(*logDir)
	if err != nil {
		log.Fatal("open csv sink", zap.Error(err))
	}

	sinks := sink.Multi{csv}
	if *feedAddr != "" {
		srv := feed.NewServer(log.Named("feed"))
		sinks = append(sinks, srv)
		go func() {
			log.Info("feed listening", zap.String("addr", *feedAddr))
			if err := http.ListenAndServe(*feedAddr, srv.Routes()); err != nil {
				log.Error("feed server stopped", zap.Error(err))
			}
		}()
	}

	params := market.DefaultParams()
	params.TickSize = decimal.NewFromFloat(*tick)
	params.StartMid = decimal.NewFromFloat(*mid)
	params.Seed = *seed

	start := time.Now().UTC()
	book := engine.NewOrderBook()
	sim := market.New(book, params, start)

	ladder := strategy.NewLadderBid()
	drip := strategy.NewDripFlip()
	sched := scheduler.New([]scheduler.StrategyWindow{
		{Strategy: ladder, Offset: 20 * time.Second, Duration: 20 * time.Second},
		{Strategy: drip, Offset: 60 * time.Second, Duration: 20 * time.Second},
		{Strategy: ladder, Offset: 100 * time.Second, Duration: 20 * time.Second},
		{Strategy: drip, Offset: 100 * time.Second, Duration: 20 * time.Second},
	})
	sched.AttachSink(sinks)

	run := runner.New(runner.Config{
		Book:     book,
		Sim:      sim,
		Strategy: sched,
		Context: strategy.Context{
			TickSize:       params.TickSize,
			CapitalLimit:   decimal.NewFromFloat(*capital),
			SimulationStep: *step,
			Logger: func(msg string) {
				log.Info(msg)
				sinks.LogEvent(msg)
			},
		},
		Sink:   sinks,
		Logger: log.Named("runner"),
		Pace:   *pace,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("simulation starting",
		zap.Duration("duration", *duration),
		zap.Duration("step", *step),
		zap.Int64("seed", *seed))

	if err := run.Run(ctx, start, *duration); err != nil {
		log.Warn("run ended early", zap.Error(err))
	}
	if err := sinks.Close(); err != nil {
		log.Error("close sinks", zap.Error(err))
	}
}
