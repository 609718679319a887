// Command stsdbd is the daemon entry point: the excluded boundary (spec
// §1's "OS service wrappers... command-line argument parsing... log sink
// setup") that reads a config file path, traps shutdown signals, and
// hands off to the Kernel.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jakinnaird/stsdb/internal/config"
	"github.com/jakinnaird/stsdb/internal/kernel"
	"github.com/jakinnaird/stsdb/pkg/log"
)

func main() {
	configPath := flag.String("config", "/etc/stsdb/stsdb.json", "path to the JSON configuration file")
	flag.Parse()

	raw, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("main: read config %s: %v", *configPath, err)
	}

	cfg, err := config.Parse(raw)
	if err != nil {
		log.Fatalf("main: parse config %s: %v", *configPath, err)
	}

	if cfg.LogPath != "" && cfg.LogPath != "-" {
		if err := os.MkdirAll(cfg.LogPath, 0o755); err != nil {
			log.Fatalf("main: create log directory %s: %v", cfg.LogPath, err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.LogPath, "stsdb.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("main: open log file in %s: %v", cfg.LogPath, err)
		}
		defer f.Close()
		log.SetOutput(f)
	}
	// After SetOutput, which resets every level's writer.
	log.SetLogLevel(cfg.LogLevel)

	k := kernel.New(cfg)
	if err := k.Start(); err != nil {
		log.Fatalf("main: kernel start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infof("main: shutting down")
	k.Stop()
}
