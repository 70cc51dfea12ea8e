package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/spf13/cobra"

	"github.com/qsliu2017/echobench/internal/bench"
	"github.com/qsliu2017/echobench/internal/nofile"
)

var (
	address     string
	length      int
	duration    uint
	connections uint
	pprofAddr   string
)

func main() {
	root := &cobra.Command{
		Use:   "echobench",
		Short: "Echo benchmark.",
		Long: `Echo benchmark.

Opens a fixed set of persistent TCP connections to an echo server and drives
each one with a write/read round-trip loop for a fixed duration, then reports
total throughput and errors.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}

	f := root.Flags()
	f.StringVarP(&address, "address", "a", bench.DefaultAddress, "Target echo server address.")
	f.IntVarP(&length, "length", "l", bench.DefaultLength, "Test message length.")
	f.UintVarP(&duration, "duration", "t", bench.DefaultDuration, "Test duration in seconds.")
	f.UintVarP(&connections, "number", "c", bench.DefaultConnections, "Test connection number.")
	f.StringVar(&pprofAddr, "pprof", "", "Serve pprof on this address while the benchmark runs.")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := bench.Config{
		Address:         address,
		Length:          length,
		DurationSeconds: duration,
		Connections:     connections,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := nofile.Ensure(cfg.Connections); err != nil {
		return err
	}

	if pprofAddr != "" {
		go func() {
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Printf("pprof listener: %v", err)
			}
		}()
	}

	res, err := bench.Run(cfg)
	if err != nil {
		return err
	}
	return bench.WriteReport(cmd.OutOrStdout(), cfg, res)
}
