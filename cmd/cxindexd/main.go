// Command cxindexd is the persistent indexing daemon: a bare
// flag.FlagSet, a constructed Server, Run, and an EADDRINUSE-specific
// error message, plus the flags its on-disk layout and config file
// need.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cxindex/internal/config"
	"cxindex/internal/frontend"
	"cxindex/internal/logging"
	"cxindex/internal/server"
	"cxindex/internal/version"
)

func main() {
	listenUnix := flag.String("listen-unix", defaultSocketPath(), "unix domain socket path (preferred transport)")
	listenTCP := flag.String("listen-tcp", "127.0.0.1:7337", "tcp fallback address, used if the unix socket cannot be bound")
	dataDir := flag.String("data-dir", defaultDataDir(), "directory holding per-project index state")
	configFile := flag.String("config", "", "INI config file listing Makefiles/GRTags/SmartProjects groups")
	threadCount := flag.Int("threads", 0, "indexer worker pool size per project (0 = default)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger := logging.New(nil, 1024)

	s := server.NewServer(server.Options{
		ListenUnix:  *listenUnix,
		ListenTCP:   *listenTCP,
		DataDir:     *dataDir,
		FrontEnd:    frontend.NewTextScanFrontEnd(nil),
		Logger:      logger,
		ThreadCount: *threadCount,
	})

	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cxindexd: loading config %s: %v\n", *configFile, err)
			os.Exit(1)
		}
		if err := s.LoadConfig(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "cxindexd: %v\n", err)
			os.Exit(1)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("cxindexd: signal received, shutting down")
		_ = s.Shutdown()
	}()

	if err := s.Run(); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			fmt.Fprintf(os.Stderr, "cxindexd: listen address in use (unix=%s tcp=%s)\n", *listenUnix, *listenTCP)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.cxindex"
	}
	return ".cxindex"
}

func defaultSocketPath() string {
	return defaultDataDir() + "/cxindexd.sock"
}
