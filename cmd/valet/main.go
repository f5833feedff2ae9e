// Valet is a personal assistant agent.
//
// It exposes a small authenticated HTTP API in front of a tool-calling
// reasoning loop with per-user conversation history. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); secrets can also arrive via a .env
// file or the process environment.
//
// Usage:
//
//	valet serve              Start the API server
//	valet init [dir]         Write an example config file
//	valet ask <question>     Ask a single question (for testing)
//	valet ingest <dir>       Index documents into the knowledge base
//	valet version            Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"valet/examples"
	"valet/internal/agent"
	"valet/internal/api"
	"valet/internal/buildinfo"
	"valet/internal/calendar"
	"valet/internal/config"
	"valet/internal/docs"
	"valet/internal/email"
	"valet/internal/fetch"
	"valet/internal/history"
	"valet/internal/llm"
	"valet/internal/search"
	"valet/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand; the flag
// package's package-level globals get in the way of parallel tests and
// the surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: valet ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "ingest":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: valet ingest <dir>")
		}
		return runIngest(ctx, stdout, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Valet - Personal Assistant Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: valet [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  init [dir]     Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  ask            Ask a single question (for testing)")
	fmt.Fprintln(w, "  ingest <dir>   Index .md and .txt files into the knowledge base")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>   Path to config file (default: auto-discover)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// runInit writes the example config into dir. It refuses to overwrite
// an existing file so a typo cannot destroy a working setup.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}

	if err := os.WriteFile(path, examples.ConfigYAML, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Fprintf(stdout, "Wrote %s\n", path)
	fmt.Fprintln(stdout, "Edit it (at minimum api_token and model.api_key), then run: valet serve")
	return nil
}

func runVersion(w io.Writer) error {
	fmt.Fprintln(w, buildinfo.String())
	info := buildinfo.Info()
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// loadConfig reads the .env file (if present), locates the YAML config,
// parses it, and validates it. Returns the config and the path loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	// Missing .env is fine; real environments often set vars directly.
	_ = godotenv.Load()

	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// buildRegistry assembles the tool registry from the configuration.
// Every tool is optional except datetime; unconfigured integrations
// are skipped with a log line rather than failing startup.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tools.Registry, func(), error) {
	reg := tools.NewRegistry()
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	reg.MustRegister(tools.DatetimeTool())

	// Web search, with provider fallback when both are configured.
	mgr := search.NewManager(cfg.Search.Primary)
	if cfg.Search.SearXNG.URL != "" {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	if cfg.Search.Brave.APIKey != "" {
		mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	if mgr.Configured() {
		reg.MustRegister(search.Tool(mgr))
		logger.Info("web search enabled", "primary", cfg.Search.Primary)
	} else {
		logger.Info("web search disabled (no provider configured)")
	}

	reg.MustRegister(fetch.Tool(fetch.New()))

	if cfg.Email.Configured() {
		emailMgr := email.NewManager(cfg.Email, logger)
		closers = append(closers, emailMgr.Close)
		if err := email.RegisterTools(reg, emailMgr); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("register email tools: %w", err)
		}
		logger.Info("email enabled", "accounts", emailMgr.Names())
	} else {
		logger.Info("email disabled (not configured)")
	}

	if cfg.Calendar.Configured() {
		cal := calendar.New(cfg.Calendar.URL, cfg.Calendar.Username, cfg.Calendar.Password, logger)
		reg.MustRegister(calendar.Tool(cal))
		logger.Info("calendar enabled", "url", cfg.Calendar.URL)
	} else {
		logger.Info("calendar disabled (not configured)")
	}

	if cfg.Docs.Path != "" {
		store, err := docs.Open(cfg.Docs.Path, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open knowledge base %s: %w", cfg.Docs.Path, err)
		}
		closers = append(closers, func() { store.Close() })

		if cfg.Docs.IngestDir != "" {
			n, err := store.IngestDir(ctx, cfg.Docs.IngestDir)
			if err != nil {
				logger.Warn("knowledge base ingestion failed", "dir", cfg.Docs.IngestDir, "error", err)
			} else {
				logger.Info("knowledge base refreshed", "dir", cfg.Docs.IngestDir, "files", n)
			}
		}
		reg.MustRegister(docs.Tool(store))
		logger.Info("knowledge base enabled", "path", cfg.Docs.Path)
	} else {
		logger.Info("knowledge base disabled (not configured)")
	}

	return reg, closeAll, nil
}

// runServe is the primary operating mode: load config, open stores,
// build the tool registry, start the HTTP API, and block until a
// shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := config.NewLogger(stdout, cfg.LogLevel)
	logger.Info("starting valet", "version", buildinfo.Version, "config", cfgPath)

	store := history.New(cfg.History.Path, logger)
	defer store.Close()

	reg, closeTools, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTools()
	names := make([]string, 0, reg.Len())
	for _, t := range reg.List() {
		names = append(names, t.Name)
	}
	logger.Info("tools registered", "names", strings.Join(names, ","))

	client := llm.NewOpenAIClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Name, cfg.Model.Temperature)
	loop := agent.NewLoop(client, reg, cfg.Agent.MaxIterations, logger)
	orch := agent.NewOrchestrator(loop, store, cfg.Agent.SystemPrompt, logger)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, cfg.APIToken, orch, store, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("valet stopped")
	return nil
}

// runAsk boots a minimal agent with an in-memory history store and
// processes a single question. Useful for smoke tests without the
// server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	question := strings.Join(args, " ")

	store := history.New("", logger)
	defer store.Close()

	reg, closeTools, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTools()

	client := llm.NewOpenAIClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Name, cfg.Model.Temperature)
	loop := agent.NewLoop(client, reg, cfg.Agent.MaxIterations, logger)
	orch := agent.NewOrchestrator(loop, store, cfg.Agent.SystemPrompt, logger)

	res, err := orch.Handle(ctx, "cli", question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if res.Err != nil {
		logger.Warn("turn degraded", "error", res.Err)
	}

	fmt.Fprintln(stdout, res.Answer)
	return nil
}

// runIngest indexes a directory of documents into the knowledge base
// without starting the server.
func runIngest(ctx context.Context, stdout io.Writer, configPath string, dir string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Docs.Path == "" {
		return fmt.Errorf("docs.path must be set in the config to ingest documents")
	}

	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	store, err := docs.Open(cfg.Docs.Path, logger)
	if err != nil {
		return fmt.Errorf("open knowledge base %s: %w", cfg.Docs.Path, err)
	}
	defer store.Close()

	n, err := store.IngestDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", dir, err)
	}

	fmt.Fprintf(stdout, "Indexed %d files from %s\n", n, dir)
	return nil
}
