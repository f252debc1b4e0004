package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/cupom-extractor/internal/config"
	"github.com/zombor/cupom-extractor/internal/extraction"
	"github.com/zombor/cupom-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

var defaultModels = map[string]string{
	"gemini": "gemini-2.5-flash",
	"openai": "gpt-4o-mini",
	"ollama": "llava",
}

// shutdownGrace bounds how long in-flight extractions may finish on exit
const shutdownGrace = 30 * time.Second

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("cupom-extractor")
	var (
		port           = fs.IntLong("port", 5000, "HTTP server port")
		scannerType    = fs.StringLong("scanner", "openai", "Recognition backend: 'gemini', 'openai' or 'ollama'")
		apiKey         = fs.StringLong("api-key", "", "Backend API key (falls back to --api-key-file, then GEMINI_API_KEY / OPENAI_API_KEY)")
		apiKeyFile     = fs.StringLong("api-key-file", "api_key.txt", "File holding the backend API key")
		model          = fs.StringLong("model", "", "Model name (defaults: gemini-2.5-flash, gpt-4o-mini, llava)")
		openaiURL      = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		requestTimeout = fs.DurationLong("request-timeout", 90*time.Second, "Maximum time per extraction request (0 disables)")
		backendRPS     = fs.Float64Long("backend-rps", 0, "Maximum backend calls per second (0 disables)")
		backendBurst   = fs.IntLong("backend-burst", 1, "Backend calls allowed in a burst")
		journalPath    = fs.StringLong("journal", "cupom-extractor.db", "Outcome journal file path (empty disables)")
		journalKeep    = fs.IntLong("journal-retention", extraction.DefaultJournalRetention, "Journal entries kept, oldest dropped first (0 keeps all)")
		captureDir     = fs.StringLong("capture-dir", "", "Directory for frames of failed recognitions (empty disables)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = fs.BoolLong("version", "Show version information")
		_              = fs.StringLong("config", "", "Config file (flag value pairs, one per line)")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CUPOM"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	})))

	// Registered first so it runs after every other deferred cleanup
	failed := false
	defer func() {
		if failed {
			os.Exit(1)
		}
	}()

	if *model == "" {
		*model = defaultModels[*scannerType]
	}

	// Resolve the credential for backends that need one
	key, keySource, err := config.LoadAPIKey(*scannerType, *apiKey, *apiKeyFile, os.Getenv)
	if err != nil {
		slog.Error("Failed to load API key", "error", err)
		os.Exit(1)
	}
	if config.RequiresKey(*scannerType) {
		if key == "" {
			slog.Error("API key is required. Set --api-key, write it to the key file, or set the backend's environment variable",
				"scanner", *scannerType, "key_file", *apiKeyFile)
			os.Exit(1)
		}
		slog.Info("API key loaded", "source", keySource)
	}

	// Initialize scanner based on type
	httpClient := &http.Client{}
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		slog.Info("Initializing Gemini scanner...", "model", *model)
		scanner, err = scanning.NewGemini(key, *model)
	case "openai":
		slog.Info("Initializing OpenAI scanner...", "url", *openaiURL, "model", *model)
		scanner, err = scanning.NewOpenAI(key, *model, *openaiURL, httpClient)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *model)
		scanner, err = scanning.NewOllama(*ollamaURL, *model, httpClient)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, openai or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "scanner", *scannerType, "error", err)
		os.Exit(1)
	}
	scanner = scanning.NewRateLimited(scanner, *backendRPS, *backendBurst)
	defer scanner.Close()

	var journal extraction.Journal
	if *journalPath != "" {
		slog.Info("Initializing journal...", "path", *journalPath, "retention", *journalKeep)
		boltJournal, err := extraction.NewBoltJournal(*journalPath, *journalKeep)
		if err != nil {
			slog.Error("Failed to initialize journal", "error", err)
			os.Exit(1)
		}
		defer boltJournal.Close()
		journal = boltJournal
	}

	var captures extraction.Storage
	if *captureDir != "" {
		slog.Info("Initializing capture storage...", "dir", *captureDir)
		store, err := extraction.NewLocalStorage(*captureDir)
		if err != nil {
			slog.Error("Failed to initialize capture storage", "error", err)
			os.Exit(1)
		}
		captures = store
	}

	// Initialize service
	service := extraction.NewService(scanner, journal, captures, extraction.Info{
		Scanner:          *scannerType,
		Model:            *model,
		APIKeyConfigured: key != "",
	})

	// Initialize server
	basicAuth := extraction.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := extraction.NewServer(service, basicAuth, *requestTimeout)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal or a server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server error", "error", err)
			failed = true
		}
		return
	}

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
