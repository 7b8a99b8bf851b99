package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"studyhub.org/internal/audit"
	"studyhub.org/internal/auth"
	"studyhub.org/internal/httpapi"
	"studyhub.org/internal/idp"
	"studyhub.org/internal/obs"
	"studyhub.org/internal/store/pg"
	"studyhub.org/internal/stream"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("STUDYHUB_PG_DSN")
	if dsn == "" {
		log.Fatal("STUDYHUB_PG_DSN is required")
	}
	secret := os.Getenv("STUDYHUB_SESSION_SECRET")
	if secret == "" {
		log.Fatal("STUDYHUB_SESSION_SECRET is required")
	}
	env := envOr("STUDYHUB_ENV", "dev")
	addr := envOr("STUDYHUB_ADDR", ":8080")

	ttl := auth.DefaultSessionTTL
	if raw := os.Getenv("STUDYHUB_SESSION_TTL_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			log.Fatalf("invalid STUDYHUB_SESSION_TTL_DAYS: %q", raw)
		}
		ttl = time.Duration(days) * 24 * time.Hour
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	sessions, err := auth.NewSessions(store, []byte(secret))
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}
	credentials, err := auth.NewCredentials(store)
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}
	resolver, err := auth.NewResolver(store)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if err := resolver.EnsureBuiltins(startCtx); err != nil {
		log.Printf("ensure builtin permissions: %v", err)
	}
	cancelStart()

	events := stream.New()
	recorder := audit.NewRecorder(store, audit.WithStream(events))

	var provider *idp.Provider
	issuer := os.Getenv("STUDYHUB_IDP_ISSUER")
	jwksURL := os.Getenv("STUDYHUB_IDP_JWKS_URL")
	if issuer != "" && jwksURL != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		keys, err := idp.NewKeyCache(idp.FetchJWKS(client, jwksURL), 15*time.Minute)
		if err != nil {
			log.Fatalf("jwks cache: %v", err)
		}
		verifier, err := idp.NewVerifier(keys, issuer)
		if err != nil {
			log.Fatalf("idp verifier: %v", err)
		}
		provider, err = idp.NewProvider(verifier, store)
		if err != nil {
			log.Fatalf("idp provider: %v", err)
		}
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, env, httpapi.Deps{
		Sessions:    sessions,
		Credentials: credentials,
		Resolver:    resolver,
		Users:       store,
		RBAC:        store,
		Recorder:    recorder,
		Events:      events,
		Provider:    provider,
		SessionTTL:  ttl,
	})

	// Expired sessions are invalid the moment they lapse; this loop only
	// keeps the table from growing without bound.
	gcCtx, cancelGC := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gcCtx.Done():
				return
			case <-ticker.C:
				if n, err := sessions.PurgeExpired(gcCtx); err == nil && n > 0 {
					log.Printf("purged %d expired sessions", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Printf("Starting studyhub-api %s (%s) on %s", version, env, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancelGC()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
