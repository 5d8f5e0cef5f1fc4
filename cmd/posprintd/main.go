// Command posprintd runs the print core as a foreground process or an
// installed OS service.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kardianos/service"

	"posprint/eventhub"
	"posprint/logger"
	"posprint/orchestrator"
	"posprint/printerstore"
	"posprint/queue"
	"posprint/settings"
)

type program struct {
	log     *logger.Logger
	orch    *orchestrator.Orchestrator
	cs      *printerstore.Store
	qs      *queue.Store
	svcName string
}

func (p *program) Start(s service.Service) error {
	go p.run()
	return nil
}

func (p *program) run() {
	if err := p.orch.Initialize(); err != nil {
		p.log.Error("initialize failed", "error", err.Error())
		os.Exit(1)
	}
	p.log.Info("posprintd started")
}

func (p *program) Stop(s service.Service) error {
	p.orch.Shutdown()
	if p.cs != nil {
		p.cs.Close()
	}
	if p.qs != nil {
		p.qs.Close()
	}
	p.log.Close()
	return nil
}

func main() {
	install := flag.Bool("install", false, "install posprintd as an OS service")
	uninstall := flag.Bool("uninstall", false, "uninstall the posprintd OS service")
	configPath := flag.String("config", "posprint.toml", "TOML settings file name, looked up in the platform search paths")
	flag.Parse()

	cfg, loadedFrom, err := settings.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading settings: %v\n", err)
		os.Exit(1)
	}
	if loadedFrom == "" {
		loadedFrom = "(defaults; no config file found)"
	}

	log := logger.New(logger.LevelFromString(cfg.Logging.Level), cfg.Logging.Dir, 1000)
	log.SetConsoleOutput(cfg.Logging.Console)
	log.Info("loaded settings", "source", loadedFrom)

	cs, err := printerstore.Open(dbPath(cfg.Database.Path, "printers.db"), log)
	if err != nil {
		log.Error("opening printer store", "error", err.Error())
		os.Exit(1)
	}
	qs, err := queue.Open(dbPath(cfg.Database.Path, "queue.db"), log)
	if err != nil {
		log.Error("opening queue store", "error", err.Error())
		os.Exit(1)
	}

	hub := eventhub.New()
	opts := orchestrator.Options{
		AutoStartProcessing: cfg.Orchestrator.AutoStartProcessing,
		AutoConnect:         cfg.Orchestrator.AutoConnect,
		ProcessingInterval:  time.Duration(cfg.Orchestrator.ProcessingIntervalMs) * time.Millisecond,
		StatusCheckInterval: time.Duration(cfg.Orchestrator.StatusCheckIntervalS) * time.Second,
		MinFirmware:         cfg.Orchestrator.MinFirmware,
	}
	orch := orchestrator.New(cs, qs, hub, log, opts)

	prg := &program{log: log, orch: orch, cs: cs, qs: qs, svcName: "posprintd"}

	svcConfig := &service.Config{
		Name:        "posprintd",
		DisplayName: "POS Print Core",
		Description: "Receipt and kitchen printer routing, queueing, and transport service.",
	}
	svc, err := service.New(prg, svcConfig)
	if err != nil {
		log.Error("creating service wrapper", "error", err.Error())
		os.Exit(1)
	}

	switch {
	case *install:
		if err := svc.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "installing service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("posprintd installed")
		return
	case *uninstall:
		if err := svc.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "uninstalling service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("posprintd uninstalled")
		return
	}

	if err := svc.Run(); err != nil {
		log.Error("service run failed", "error", err.Error())
		os.Exit(1)
	}
}

// dbPath derives filename next to the configured base path, so
// printers.db and queue.db live side by side in the data directory
// rather than sharing a single connection-locked sqlite file.
func dbPath(base, filename string) string {
	return filepath.Join(filepath.Dir(base), filename)
}
