package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"

	"opsuite.io/internal/audit"
	"opsuite.io/internal/authz"
	"opsuite.io/internal/config"
	"opsuite.io/internal/httpapi"
	"opsuite.io/internal/obs"
	"opsuite.io/internal/session"
	"opsuite.io/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("OPSUITE_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DB.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	issuer, err := token.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	store := authz.NewPGStore(db)
	svc, err := authz.NewService(store, issuer,
		authz.WithRefreshTTL(cfg.Auth.RefreshTTL),
		authz.WithDenylist(session.NewDenylist(redisClient)),
	)
	if err != nil {
		log.Fatalf("authz service: %v", err)
	}

	auditLog := audit.NewLogger(audit.NewPGStore(db))
	sessions := session.NewManager(cfg.Auth.SecureCookies, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	api := httpapi.New(httpapi.Deps{
		Ready:    httpapi.ReadyProbe{DB: db, Redis: redisClient},
		Version:  version,
		Authz:    svc,
		Store:    store,
		Sessions: sessions,
		Audit:    auditLog,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting opsuite-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	_ = db.Close()
	log.Println("Stopped")
}
