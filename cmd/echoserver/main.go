//go:build linux

package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/spf13/cobra"

	"github.com/qsliu2017/echobench/internal/echoserver"
)

var (
	address   string
	shards    int
	bufSize   int
	pprofAddr string
)

func main() {
	root := &cobra.Command{
		Use:          "echoserver",
		Short:        "TCP echo server to benchmark against.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}

	f := root.Flags()
	f.StringVarP(&address, "address", "a", "127.0.0.1:12345", "Address to listen on.")
	f.IntVar(&shards, "shards", 0, "Accept loops sharing the port. Default: number of CPUs.")
	f.IntVar(&bufSize, "buffer", 1024, "Per-read buffer size in bytes.")
	f.StringVar(&pprofAddr, "pprof", "", "Serve pprof on this address.")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if pprofAddr != "" {
		go func() {
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Printf("pprof listener: %v", err)
			}
		}()
	}

	srv, err := echoserver.New(echoserver.Config{
		Address: address,
		Shards:  shards,
		BufSize: bufSize,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	log.Printf("echo server listening on %s", srv.Addr())
	srv.Wait()
	return nil
}
