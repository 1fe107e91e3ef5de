// Command archived runs one rank of a distributed object archive, serving
// a connect RPC endpoint for its peers and exposing a tiny line-oriented
// control protocol on stdin for local inserts, loads and removals.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/archivekit/objectarchive/cluster"
	"github.com/archivekit/objectarchive/transport/rpc"
	"github.com/archivekit/objectarchive/wire"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to cluster config JSON file (required)")
		listen     = flag.String("listen", "", "Address to listen on (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: archived -config <file>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := cluster.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Rank < 0 || cfg.Rank >= len(cfg.Peers) {
		log.Fatalf("rank %d out of range for %d peers", cfg.Rank, len(cfg.Peers))
	}

	addr := cfg.Peers[cfg.Rank]
	if *listen != "" {
		addr = *listen
	}

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	tr := rpc.New(cfg.Rank, cfg.Peers, http.DefaultClient)
	procedure, handler := rpc.NewHandler(tr.Inbox())

	mux := http.NewServeMux()
	mux.Handle(procedure, handler)

	server := &http.Server{Addr: mustHostPort(addr), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("archived: serve failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	node, err := cluster.New[string](ctx, tr, *cfg, wire.GobCodec{}, nil)
	if err != nil {
		log.Fatalf("Failed to create cluster node: %v", err)
	}
	defer node.Close()

	logger.Info("archived started", "rank", cfg.Rank, "peers", len(cfg.Peers), "listen", addr)

	runControlLoop(ctx, node, logger)

	server.Shutdown(context.Background())
}

// runControlLoop reads newline-delimited commands from stdin:
//
//	insert <key> <value>
//	load <key>
//	remove <key>
//
// After each command it processes at most one queued peer message; while
// it waits for the next line on stdin, no peer messages are processed.
func runControlLoop(ctx context.Context, node *cluster.Node[string], logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 3)
		if len(fields) == 0 || fields[0] == "" {
			continue
		}

		switch fields[0] {
		case "insert":
			if len(fields) < 3 {
				fmt.Println("usage: insert <key> <value>")
				continue
			}
			if err := node.Insert(fields[1], []byte(fields[2]), true); err != nil {
				logger.Error("insert failed", "key", fields[1], "error", err)
				continue
			}
			fmt.Println("ok")
		case "load":
			if len(fields) < 2 {
				fmt.Println("usage: load <key>")
				continue
			}
			data, err := node.Load(ctx, fields[1], true)
			if err != nil {
				logger.Error("load failed", "key", fields[1], "error", err)
				continue
			}
			fmt.Println(string(data))
		case "remove":
			if len(fields) < 2 {
				fmt.Println("usage: remove <key>")
				continue
			}
			if err := node.Remove(fields[1]); err != nil {
				logger.Error("remove failed", "key", fields[1], "error", err)
				continue
			}
			fmt.Println("ok")
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}

		node.Pump(ctx)
	}
}

// mustHostPort strips a http:// or https:// scheme from addr, since
// http.Server.Addr expects a bare host:port.
func mustHostPort(addr string) string {
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	return addr
}
