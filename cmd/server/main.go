/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reconciliation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite payload store
  3. Build the mapping registry (education seed catalog, optionally
     overridden by a mappings file with hot reload)
  4. Wire the ingestion pipeline and query engine
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: ops.db)
             Use ":memory:" for an in-memory database
  -mappings  Optional mappings JSON file; watched for changes so alias
             edits take effect on the next sync without a restart

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the mappings watcher and close the database

SEE ALSO:
  - api/server.go: Router configuration
  - factory/watch.go: Mappings hot reload
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classly/reconcile-engine/api"
	"github.com/classly/reconcile-engine/edu"
	"github.com/classly/reconcile-engine/factory"
	"github.com/classly/reconcile-engine/ingest"
	"github.com/classly/reconcile-engine/query"
	"github.com/classly/reconcile-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ops.db", "SQLite database path")
	mappingsPath := flag.String("mappings", "", "mappings JSON file (watched for changes)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Mapping catalog: education seeds, overridden by the file when given
	registry, err := edu.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to build mapping registry: %v", err)
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if *mappingsPath != "" {
		watcher, err := factory.NewWatcher(*mappingsPath, registry)
		if err != nil {
			log.Fatalf("Failed to load mappings file: %v", err)
		}
		watcher.Start(watchCtx)
		log.Printf("Watching mappings file %s", *mappingsPath)
	}

	// Engine wiring
	handler := &api.Handler{
		Registry: registry,
		Pipeline: &ingest.Pipeline{Registry: registry, Sink: store},
		Compiler: &query.Compiler{DefaultTable: edu.TableTrialAttendance, Sampler: store},
		Engine:   &query.Engine{Fetcher: store},
	}

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
