// Package kernel composes Datastore, Statistics, and the network
// front-ends into the Daemon context of spec §9: "encapsulated as a
// Daemon context constructed by the entry point and passed explicitly to
// components; no process-global mutable state in the core."
package kernel

import (
	"fmt"

	"github.com/google/gops/agent"
	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jakinnaird/stsdb/internal/config"
	"github.com/jakinnaird/stsdb/internal/httpapi"
	"github.com/jakinnaird/stsdb/internal/stats"
	"github.com/jakinnaird/stsdb/internal/store"
	"github.com/jakinnaird/stsdb/internal/telnet"
	"github.com/jakinnaird/stsdb/internal/worker"
	"github.com/jakinnaird/stsdb/pkg/log"
)

// Kernel exclusively owns the Datastore, Statistics, and the network
// front-ends, per spec §9's "manual pointer ownership" translation.
type Kernel struct {
	cfg config.Config

	gopsListening bool

	statsWorker  *worker.Worker
	storeWorker  *worker.Worker
	telnetWorker *worker.Worker
	httpWorker   *worker.Worker
}

// New builds a Kernel from a validated Config. Construction does not
// start any worker; call Start for that (spec §9: "only construction-time
// failures are fatal").
func New(cfg config.Config) *Kernel {
	return &Kernel{cfg: cfg}
}

// Start launches Statistics, the Datastore writer, the telnet server, and
// the HTTP server, in that order, logging the linked SQLite version first
// (a SUPPLEMENTED FEATURE from original_source/'s kernel.cpp startup log
// line).
func (k *Kernel) Start() error {
	libVersion, _, _ := sqlite3.Version()
	log.Infof("kernel: sqlite3 version %s", libVersion)

	if k.cfg.GopsPort != "" {
		if err := agent.Listen(agent.Options{Addr: k.cfg.BindAddress + ":" + k.cfg.GopsPort}); err != nil {
			return fmt.Errorf("start gops agent: %w", err)
		}
		k.gopsListening = true
		log.Infof("kernel: gops agent listening on %s:%s", k.cfg.BindAddress, k.cfg.GopsPort)
	}

	st := stats.New(prometheus.DefaultRegisterer)
	k.statsWorker = worker.New("statistics", st)
	if err := k.statsWorker.Launch(); err != nil {
		return fmt.Errorf("start statistics: %w", err)
	}

	ds := store.New(k.cfg.DataPath, k.cfg.DBExt, k.cfg.Hostname, st)
	k.storeWorker = worker.New("datastore", ds)
	if err := k.storeWorker.Launch(); err != nil {
		return fmt.Errorf("start datastore: %w", err)
	}

	tn := telnet.New(k.cfg.BindAddress, k.cfg.TelnetPort, ds)
	k.telnetWorker = worker.New("telnet", tn)
	if err := k.telnetWorker.Launch(); err != nil {
		return fmt.Errorf("start telnet: %w", err)
	}

	hs := httpapi.New(k.cfg.BindAddress, k.cfg.HTTPPort, ds, st)
	k.httpWorker = worker.New("http", hs)
	if err := k.httpWorker.Launch(); err != nil {
		return fmt.Errorf("start http: %w", err)
	}

	log.Infof("kernel: started (data=%s bind=%s telnet=%s http=%s)",
		k.cfg.DataPath, k.cfg.BindAddress, k.cfg.TelnetPort, k.cfg.HTTPPort)
	return nil
}

// Stop sequences shutdown per spec §5: "stop HTTP -> stop telnet -> stop
// datastore (drains queue) -> stop statistics."
func (k *Kernel) Stop() {
	if k.httpWorker != nil {
		k.httpWorker.Stop()
	}
	if k.telnetWorker != nil {
		k.telnetWorker.Stop()
	}
	if k.storeWorker != nil {
		k.storeWorker.Stop()
	}
	if k.statsWorker != nil {
		k.statsWorker.Stop()
	}
	if k.gopsListening {
		agent.Close()
	}
	log.Infof("kernel: stopped")
}
