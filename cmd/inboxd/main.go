// inboxd ingests mail from multiple IMAP accounts, classifies each message
// and serves the results over HTTP.
//
// Usage:
//
//	inboxd serve    Start the ingestion engine and HTTP server
//	inboxd version  Print version information
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/inboxd/inboxd/internal/account"
	"github.com/inboxd/inboxd/internal/ingest"
	"github.com/inboxd/inboxd/internal/notify"
	"github.com/inboxd/inboxd/internal/reply"
	"github.com/inboxd/inboxd/internal/search"
	"github.com/inboxd/inboxd/internal/storage"
	"github.com/inboxd/inboxd/internal/store"
	"github.com/inboxd/inboxd/internal/web"
)

var version = "1.0.0-dev"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "version":
		fmt.Printf("inboxd %s\n", version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: inboxd <command>

Commands:
  serve       Start the ingestion engine and HTTP server
  version     Print version information

Environment:
  LISTEN_ADDR            HTTP listen address (default: :8080)
  DATA_DIR               Base data directory (default: ./data)
  ACCOUNTS_FILE          Accounts YAML file (default: <DATA_DIR>/accounts.yml)
  INDEX_FILE             Search index Parquet file (default: <DATA_DIR>/index.parquet)
  AUTO_REPLY             Enable SMTP auto-replies (default: false)

  IMAP<n>_HOST           IMAP host for account n (n = 1..9)
  IMAP<n>_USER           IMAP username
  IMAP<n>_PASS           IMAP password (IMAP<n>_PASSWORD also accepted)
  IMAP<n>_PORT           IMAP port (default: 993 TLS, 143 plain)
  IMAP<n>_TLS            Use TLS (default: false, IMAP<n>_SECURE also accepted)

  SLACK_WEBHOOK_URL      Slack incoming webhook for interested leads
  INTERESTED_WEBHOOK_URL Plain JSON webhook for interested leads

  S3_ENDPOINT            S3/MinIO endpoint for raw message archival
  S3_ACCESS_KEY_ID       S3 access key
  S3_SECRET_ACCESS_KEY   S3 secret key
  S3_BUCKET              S3 bucket (default: inboxd)`)
}

func runServe() {
	listenAddr := envOr("LISTEN_ADDR", ":8080")
	dataDir := envOr("DATA_DIR", "./data")
	accountsFile := envOr("ACCOUNTS_FILE", dataDir+"/accounts.yml")
	indexFile := envOr("INDEX_FILE", dataDir+"/index.parquet")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	accounts, err := account.Load(accountsFile)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	if len(accounts) == 0 {
		log.Printf("WARN: no accounts configured, ingestion disabled")
	}

	emailStore, err := store.OpenSQLite(dataDir + "/emails.db")
	if err != nil {
		log.Fatalf("Failed to open email store: %v", err)
	}
	defer emailStore.Close()

	idx, err := search.New(indexFile)
	if err != nil {
		log.Fatalf("Failed to open search index: %v", err)
	}
	defer idx.Close()

	blobs, err := storage.NewBlobStore(dataDir + "/raw")
	if err != nil {
		log.Fatalf("Failed to init blob store: %v", err)
	}

	notifier := notify.New(os.Getenv("SLACK_WEBHOOK_URL"), os.Getenv("INTERESTED_WEBHOOK_URL"))
	replier := reply.New(envBool("AUTO_REPLY", false))

	pipeline := ingest.NewPipeline(emailStore, idx, blobs, notifier, replier)
	orchestrator := ingest.NewOrchestrator(accounts, ingest.Dial, pipeline)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator.StartAll(ctx)

	router := web.NewRouter(web.Config{
		Store:        emailStore,
		Index:        idx,
		Orchestrator: orchestrator,
	})

	srv := &http.Server{Addr: listenAddr, Handler: router}
	go func() {
		log.Printf("INFO: inboxd %s listening on %s", version, listenAddr)
		log.Printf("INFO: data directory: %s", dataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("INFO: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: server shutdown: %v", err)
	}

	orchestrator.StopAll()
	if err := idx.Save(); err != nil {
		log.Printf("WARN: save search index: %v", err)
	}
}
