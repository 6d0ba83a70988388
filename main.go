package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"agendaprint/internal/activity"
	"agendaprint/internal/compose"
	"agendaprint/internal/config"
	"agendaprint/internal/daemon"
	"agendaprint/internal/logging"
	"agendaprint/internal/printer"
	"agendaprint/internal/server"
	"agendaprint/internal/spool"
	"agendaprint/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logging.Configure(cfg.ErrorLogPath, cfg.ActivityLogPath, cfg.AccessLogPath, cfg.MaxLogSize)

	log.SetOutput(logging.ErrorWriter())

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.Fatalf("failed to create db dir: %v", err)
	}
	if err := os.MkdirAll(cfg.ConfDir, 0755); err != nil {
		log.Fatalf("failed to create conf dir: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	if err := st.EnsureAdminUser(ctx); err != nil {
		log.Fatalf("failed to ensure admin user: %v", err)
	}

	width := cfg.PaperWidth
	sp := spool.New(cfg.SpoolDir, width, cfg.KeepSpool, func(blocks []compose.Block) []byte {
		return printer.Encode(blocks, width)
	})
	if err := sp.Ensure(); err != nil {
		log.Fatalf("failed to ensure spool dir: %v", err)
	}

	svc := daemon.New(daemon.Options{
		Config:     cfg,
		Priorities: st,
		Tasks:      st,
		Observer:   activity.Multi(activity.Log{}, st),
		Archiver:   sp,
	})
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	srv := &server.Server{Service: svc, Store: st, Spool: sp, BaseContext: ctx}
	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      logging.HTTPAccessMiddleware(srv.Handler()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("listen error on %s: %v", cfg.Listen, err)
	}
	go func() {
		log.Printf("agendaprint control API listening on %s, printer %s@%d", cfg.Listen, cfg.PrinterPort, cfg.PrinterBaudRate)
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigs {
		if sig == syscall.SIGHUP {
			reload(svc)
			continue
		}
		break
	}
	log.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if err := svc.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}

func reload(svc *daemon.Service) {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("reload failed: %v", err)
		return
	}
	if err := svc.Reload(cfg); err != nil {
		log.Printf("reload failed: %v", err)
	}
}
