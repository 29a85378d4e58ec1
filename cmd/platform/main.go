package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caresync/platform/internal/api"
	"github.com/caresync/platform/internal/deadletter"
	"github.com/caresync/platform/internal/journal"
	"github.com/caresync/platform/internal/shared/auth"
	"github.com/caresync/platform/internal/shared/config"
	"github.com/caresync/platform/internal/shared/metrics"
	secmiddleware "github.com/caresync/platform/internal/shared/middleware"
	"github.com/caresync/platform/internal/simulation"
	"github.com/caresync/platform/internal/store"
	"github.com/caresync/platform/internal/store/cassandra"
	"github.com/caresync/platform/internal/store/influxts"
	"github.com/caresync/platform/internal/store/mongodoc"
	"github.com/caresync/platform/internal/store/neo4jgraph"
	"github.com/caresync/platform/internal/store/rediscache"
	"github.com/caresync/platform/internal/sync"
)

// App holds all application dependencies. Adapter lifecycle is owned here,
// not by the components using them.
type App struct {
	Config *config.Config

	Documents  *mongodoc.Store
	Graph      *neo4jgraph.Store
	TimeSeries *influxts.Store
	Analytics  *cassandra.Store
	Cache      *rediscache.Store

	Journal    *journal.Journal
	DeadLetter *deadletter.Stream

	Dispatcher *sync.Dispatcher
	Service    *sync.Service
	Reconciler *sync.Reconciler
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// The five stores are the point of this service; refuse to start
	// without them.
	documents, err := mongodoc.New(ctx, cfg.Mongo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "document store: %v\n", err)
		os.Exit(1)
	}
	app.Documents = documents
	defer documents.Close(ctx)

	graph, err := neo4jgraph.New(ctx, cfg.Neo4j)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graph store: %v\n", err)
		os.Exit(1)
	}
	app.Graph = graph
	defer graph.Close(ctx)

	app.TimeSeries = influxts.New(cfg.Influx)
	defer app.TimeSeries.Close()

	if err := cassandra.EnsureSchema(cfg.Cassandra); err != nil {
		fmt.Fprintf(os.Stderr, "analytics schema: %v\n", err)
		os.Exit(1)
	}
	analytics, err := cassandra.New(cfg.Cassandra)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analytics store: %v\n", err)
		os.Exit(1)
	}
	app.Analytics = analytics
	defer analytics.Close()

	cache, err := rediscache.New(ctx, cfg.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cache store: %v\n", err)
		os.Exit(1)
	}
	app.Cache = cache
	defer cache.Close()

	// Outcome journal (optional - skip if not available)
	var outcomeSink sync.OutcomeSink
	var runSink sync.RunSink
	if cfg.Journal.Enabled {
		db, err := journal.NewDB(ctx, cfg.Journal)
		if err != nil {
			fmt.Printf("Warning: outcome journal not available: %v\n", err)
		} else {
			defer db.Close()
			if err := journal.Migrate(ctx, db.Pool); err != nil {
				fmt.Printf("Warning: journal migration failed: %v\n", err)
			}
			app.Journal = journal.New(db)
			outcomeSink = app.Journal
			runSink = app.Journal
			fmt.Println("Outcome journal initialized")
		}
	}

	// Dead-letter stream (optional - skip if not available)
	var dl sync.DeadLetter
	if cfg.DeadLetter.Enabled {
		client, err := deadletter.NewClient(cfg.DeadLetter)
		if err != nil {
			fmt.Printf("Warning: dead-letter stream not available: %v\n", err)
		} else {
			defer client.Close()
			app.DeadLetter = deadletter.NewStream(client, cfg.DeadLetter.Stream)
			dl = app.DeadLetter
			fmt.Printf("Dead-letter stream initialized (%s)\n", cfg.DeadLetter.Stream)
		}
	}

	app.Dispatcher = sync.NewDispatcher(sync.Deps{
		TimeSeries: app.TimeSeries,
		Analytics:  app.Analytics,
		Cache:      app.Cache,
		Graph:      app.Graph,
		Journal:    outcomeSink,
		DeadLetter: dl,
	})

	app.Service = sync.NewService(app.Dispatcher, sync.ServiceConfig{
		Workers:   cfg.Dispatcher.Workers,
		QueueSize: cfg.Dispatcher.QueueSize,
	})
	if err := app.Service.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start event service: %v\n", err)
		os.Exit(1)
	}

	app.Reconciler = sync.NewReconciler(
		app.Documents,
		app.Dispatcher,
		cfg.Reconciler.RatePerSecond,
		cfg.Reconciler.Burst,
		runSink,
	)

	// Demo data generator (never enabled in production)
	simCtx, stopSim := context.WithCancel(ctx)
	defer stopSim()
	if cfg.Simulation.Enabled && cfg.Server.Env != "production" {
		gen := simulation.NewGenerator(cfg.Simulation, nil, app.Service.Submit)
		go gen.Run(simCtx)
		fmt.Println("Simulation generator enabled")
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	handler := api.NewHandler(
		app.Service,
		app.Dispatcher,
		app.Reconciler,
		app.Documents,
		app.Analytics,
		app.Cache,
	)
	if app.Journal != nil {
		handler = handler.WithJournal(app.Journal)
	}
	if app.DeadLetter != nil {
		handler = handler.WithDeadLetter(app.DeadLetter)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(secmiddleware.RateLimiter(200, 50))
		r.Mount("/", handler.Routes())

		r.Route("/admin", func(r chi.Router) {
			if cfg.Server.Env == "production" {
				r.Use(auth.Middleware(cfg.Auth))
				r.Use(auth.RequireRoles("admin", "operator"))
			}
			r.Mount("/", handler.AdminRoutes())
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		stopSim()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}

		// Drain in-flight events before the adapters close.
		app.Service.Stop()
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("CareSync Clinical Synchronization Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:  %s\n", cfg.Server.Env)
	fmt.Printf("Server:       http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:          http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:       http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Document:     %s\n", cfg.Mongo.URI)
	fmt.Printf("Graph:        %s\n", cfg.Neo4j.URI)
	fmt.Printf("Time series:  %s\n", cfg.Influx.URL)
	fmt.Printf("Analytics:    %v\n", cfg.Cassandra.Hosts)
	fmt.Printf("Cache:        %s\n", cfg.Redis)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "CareSync Clinical Synchronization Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

// readyHandler pings every store; ready only when all five answer.
func readyHandler(app *App) http.HandlerFunc {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]pinger{
			string(store.TargetDocument):   app.Documents,
			string(store.TargetGraph):      app.Graph,
			string(store.TargetTimeSeries): app.TimeSeries,
			string(store.TargetAnalytics):  app.Analytics,
			string(store.TargetCache):      app.Cache,
		}

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				results[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(results)
	}
}
