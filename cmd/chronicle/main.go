package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/ask"
	"github.com/chronicle-app/chronicle/internal/config"
	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/llm"
	"github.com/chronicle-app/chronicle/internal/mcp"
	"github.com/chronicle-app/chronicle/internal/search"
	"github.com/chronicle-app/chronicle/internal/server"
	"github.com/chronicle-app/chronicle/internal/store"
	"github.com/chronicle-app/chronicle/internal/timeline"
	"github.com/chronicle-app/chronicle/internal/transcribe"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "mcp":
		err = runMCP()
	case "search":
		err = runSearch(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "rebuild":
		err = runRebuild()
	case "version", "--version", "-v":
		fmt.Printf("chronicle %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired services a command needs.
type app struct {
	cfg      *config.Config
	store    store.Store
	index    *index.Index
	search   *search.Service
	timeline *timeline.Service
	provider llm.Provider
	engine   *ask.Engine
	logger   *zap.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(os.Getenv("CHRONICLE_CONFIG"))
	if err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	st, err := store.NewStore(store.Config{DBPath: cfg.DBPath})
	if err != nil {
		return nil, err
	}

	ix := index.New(st.DB())
	if err := ix.Create(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	se := search.NewService(st, ix, logger)
	tl := timeline.NewService(st, ix, logger)
	provider := llm.NewOllama(llm.OllamaConfig{
		BaseURL: cfg.Ollama.URL,
		Model:   cfg.Ollama.Model,
	})
	engine := ask.NewEngine(se, st, provider, logger)

	return &app{
		cfg:      cfg,
		store:    st,
		index:    ix,
		search:   se,
		timeline: tl,
		provider: provider,
		engine:   engine,
		logger:   logger,
	}, nil
}

func (a *app) close() {
	a.logger.Sync()
	a.store.Close()
}

func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	transcriber := transcribe.NewClient(transcribe.Config{BaseURL: a.cfg.Whisper.URL})
	srv := server.NewServer(a.store, a.timeline, a.search, a.engine, a.provider, transcriber,
		server.Config{
			Host:      a.cfg.Server.Host,
			Port:      a.cfg.Server.Port,
			UploadDir: a.cfg.UploadDir,
		}, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	}
}

func runMCP() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	s := mcp.NewServer(mcp.ServerConfig{
		Store:    a.store,
		Timeline: a.timeline,
		Search:   a.search,
		Engine:   a.engine,
		Version:  version,
	})
	return mcp.ServeStdio(s)
}

func runSearch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: chronicle search <query> [--limit N]")
	}

	limit := 0
	var terms []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--limit" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid limit: %s", args[i+1])
			}
			limit = n
			i++
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			terms = append(terms, args[i])
		}
	}
	if len(terms) == 0 {
		return fmt.Errorf("no query specified")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.search.Search(context.Background(), strings.Join(terms, " "), limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matching events.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (%s)\n", i+1, r.Event.Title, r.Event.Date.Format("2006-01-02"))
		if r.BodySnippet != "" {
			fmt.Printf("   %s\n", stripMarkers(r.BodySnippet))
		}
	}
	return nil
}

func runAsk(args []string) error {
	var timelineName string
	var terms []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--timeline" && i+1 < len(args):
			timelineName = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			terms = append(terms, args[i])
		}
	}
	if len(terms) == 0 {
		return fmt.Errorf("usage: chronicle ask <question> [--timeline NAME]")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.engine.Ask(context.Background(), ask.Request{
		Question: strings.Join(terms, " "),
		Timeline: timelineName,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range resp.Sources {
			fmt.Printf("  - %s (%s)\n", src.Title, src.Date)
		}
	}
	return nil
}

func runRebuild() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	count, err := a.search.Rebuild(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Index rebuilt: %d entries indexed.\n", count)
	return nil
}

func stripMarkers(s string) string {
	s = strings.ReplaceAll(s, index.HighlightOpen, "")
	return strings.ReplaceAll(s, index.HighlightClose, "")
}

func printUsage() {
	fmt.Println(`chronicle — personal timeline keeper with full-text search and grounded Q&A

Usage:
  chronicle serve               Start the HTTP API server
  chronicle mcp                 Start the MCP server on stdio
  chronicle search <query>      Search events and documents
  chronicle ask <question>      Ask a question about the timeline
  chronicle rebuild             Rebuild the search index from storage
  chronicle version             Print version
  chronicle help                Show this help

Configuration is read from ~/.chronicle/config.yaml (override with
CHRONICLE_CONFIG). Useful env vars: CHRONICLE_DB, OLLAMA_URL, OLLAMA_MODEL.`)
}
