package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memorio.org/internal/assign"
	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
	"memorio.org/internal/config"
	"memorio.org/internal/httpapi"
	"memorio.org/internal/login"
	"memorio.org/internal/notify"
	"memorio.org/internal/obs"
	"memorio.org/internal/store/pg"
	"memorio.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.Load()

	var (
		rp           httpapi.ReadyProbe
		attemptStore login.AttemptStore
		userStore    login.UserStore
		directory    httpapi.UserDirectory
		caseStore    cases.Store
		assignStore  assign.Store
		auditSink    audit.Sink
		notifier     notify.Sink
	)

	if cfg.DatabaseDSN != "" {
		store, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		rp = httpapi.ReadyProbe{DB: store.DB()}
		attemptStore = store
		userStore = store
		directory = store
		caseStore = store
		assignStore = store
		auditSink = store
		notifier = store
	} else {
		// Store-less development mode: everything lives in memory.
		log.Println("MEMORIO_PG_DSN not set, running with in-memory stores")
		users := login.NewInMemoryUsers()
		caseMem := cases.NewInMemory()
		attemptStore = login.NewInMemoryAttempts()
		userStore = users
		directory = users
		caseStore = caseMem
		assignStore = assign.NewInMemory(caseMem)
		auditSink = audit.NewInMemory()
		notifier = notify.NewInMemory()
	}

	feed := stream.New()
	auditLog := audit.New(auditSink, audit.WithFeed(feed))

	sessions, err := auth.NewSessions(cfg.SessionSecret, auth.WithSessionTTL(cfg.SessionTTL))
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}
	gate, err := login.NewGate(attemptStore, userStore, sessions, auditLog)
	if err != nil {
		log.Fatalf("login gate: %v", err)
	}
	balancer, err := assign.NewBalancer(assignStore, notifier, auditLog)
	if err != nil {
		log.Fatalf("balancer: %v", err)
	}
	caseSvc := cases.NewService(caseStore, auditLog)

	api := httpapi.New(rp, version, httpapi.Deps{
		Gate:     gate,
		Balancer: balancer,
		Cases:    caseSvc,
		Sessions: sessions,
		Users:    directory,
		Notifier: notifier,
		Audit:    auditLog,
		Feed:     feed,
	})
	api.SetRateLimit(cfg.RateBurst, cfg.RatePerSec)
	api.SetMaxBodyBytes(cfg.MaxBodyBytes)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting memorio-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
