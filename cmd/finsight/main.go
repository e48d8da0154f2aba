// Command finsight is the CLI front end for the financial news analysis
// agent: it answers analyst queries over configured news sources and runs
// the ingestion pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"

	"github.com/finsight-ai/finsight/internal/agent"
	"github.com/finsight-ai/finsight/internal/expressions"
	"github.com/finsight-ai/finsight/internal/ingest"
	"github.com/finsight-ai/finsight/internal/logging"
	"github.com/finsight-ai/finsight/internal/memory"
	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/internal/store"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/internal/vector"
	"github.com/finsight-ai/finsight/internal/workflow"
	"github.com/finsight-ai/finsight/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "ask":
		err = runAsk(cfg, logger, os.Args[2:])
	case "ingest":
		err = runIngest(cfg, logger, os.Args[2:])
	case "migrate":
		err = runMigrate(cfg)
	case "templates":
		err = runTemplates(os.Args[2:])
	case "version":
		printVersion()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: finsight <command> [flags]

commands:
  ask        answer a query ("finsight ask -q 'question' [-template name | -graph file.json] [-session id]")
  ingest     ingest configured sources once, or run the cron scheduler with -watch
  migrate    apply database migrations
  templates  list workflow templates, or render one with -diagram <name>
  version    print the version`)
}

func newLogger(cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.LogFormat == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logging.NewCorrelationHandler(inner))
}

func newProvider(cfg Config) (model.Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return model.NewOpenAI(func(o *model.OpenAIOptions) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case "anthropic":
		return model.NewAnthropic(func(o *model.AnthropicOptions) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// buildEnv wires the adapter registry and expression engines shared by the
// ask and ingest commands.
func buildEnv(cfg Config, provider model.Provider, index *vector.Index) (workflow.BuildEnv, error) {
	registry := tools.NewRegistry()
	jq := expressions.NewGoJQEngine()

	adapters := []tools.Adapter{
		&tools.PlanAdapter{Provider: provider},
		&tools.CollectAdapter{},
		&tools.ParseAdapter{JQ: jq},
		&tools.RetrieveAdapter{Index: index},
		&tools.SummarizeAdapter{Provider: provider},
		&tools.ReviewAdapter{Provider: provider},
		&tools.RespondAdapter{},
	}
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			return workflow.BuildEnv{}, err
		}
	}

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return workflow.BuildEnv{}, err
	}

	sources := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if src.URL != "" {
			sources = append(sources, src.URL)
		}
	}

	return workflow.BuildEnv{
		Tools:   registry,
		Expr:    expressions.NewExprEngine(),
		CEL:     cel,
		Sources: sources,
	}, nil
}

func openStore(cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(finsightDir(), 0o755); err != nil {
		return nil, err
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newMemory(cfg Config, st *store.LibSQLStore) memory.Store {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return memory.NewRedis(client, 0)
	}
	return memory.NewSQL(st)
}

func runAsk(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	query := fs.String("q", "", "query to answer (required)")
	template := fs.String("template", "basic", "workflow template")
	graphPath := fs.String("graph", "", "run a custom graph definition from a JSON file instead of a template")
	session := fs.String("session", "", "session ID for conversation memory")
	memoryOn := fs.Bool("memory", false, "force conversation memory on")
	debug := fs.Bool("debug", false, "enable per-node debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *query == "" {
		return fmt.Errorf("ask requires -q")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	index, err := vector.NewIndex(vector.Config{PersistPath: cfg.IndexPath})
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	env, err := buildEnv(cfg, provider, index)
	if err != nil {
		return err
	}

	ag, err := agent.New(agent.Options{
		Templates: workflow.NewTemplateRegistry(),
		Env:       env,
		Memory:    newMemory(cfg, st),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := map[string]any{"user_query": *query}
	if *session != "" {
		req["session_id"] = *session
	}

	agentCfg := agent.Config{
		MaxIterations: cfg.MaxIterations,
		Debug:         *debug,
	}
	if *memoryOn {
		agentCfg.EnableMemory = agent.Bool(true)
	}

	var result *agent.Result
	if *graphPath != "" {
		def, err := loadGraphDefinition(*graphPath)
		if err != nil {
			return err
		}
		result, err = ag.ProcessGraph(ctx, req, def, agentCfg)
		if err != nil {
			return err
		}
	} else {
		result, err = ag.ProcessRequest(ctx, req, *template, agentCfg)
		if err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// loadGraphDefinition reads a custom workflow definition from a JSON file.
// Structural validation happens when the agent compiles it.
func loadGraphDefinition(path string) (*schema.GraphDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def schema.GraphDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parsing graph definition %s: %w", path, err)
	}
	return &def, nil
}

func runIngest(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	watch := fs.Bool("watch", false, "keep running and ingest on each source's cron schedule")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources configured in %s", settingsPath())
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	index, err := vector.NewIndex(vector.Config{PersistPath: cfg.IndexPath})
	if err != nil {
		return err
	}

	ig := ingest.NewIngester(
		&tools.CollectAdapter{},
		&tools.ParseAdapter{JQ: expressions.NewGoJQEngine()},
		st, index, logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*watch {
		total := 0
		for _, src := range cfg.Sources {
			n, err := ig.Ingest(ctx, src)
			if err != nil {
				logger.Error("ingestion failed",
					slog.String("source", src.Name),
					slog.String("error", err.Error()))
				continue
			}
			total += n
		}
		fmt.Printf("ingested %d topics from %d sources\n", total, len(cfg.Sources))
		return nil
	}

	sched := ingest.NewScheduler(ig, cfg.Sources, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	// Bounded shutdown; Stop waits for the in-flight tick.
	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()
	select {
	case err := <-done:
		return err
	case <-time.After(30 * time.Second):
		return fmt.Errorf("ingest scheduler did not stop in time")
	}
}

func runMigrate(cfg Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Println("migrations applied")
	return nil
}

func runTemplates(args []string) error {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	diagram := fs.String("diagram", "", "print a Mermaid flowchart of the named template")
	if err := fs.Parse(args); err != nil {
		return err
	}

	registry := workflow.NewTemplateRegistry()

	if *diagram != "" {
		tpl, err := registry.Get(*diagram)
		if err != nil {
			return err
		}
		// Diagram rendering only needs graph shape, not live providers.
		env, err := buildEnv(Config{}, model.NewMock(""), nil)
		if err != nil {
			return err
		}
		g, err := tpl.Build(env)
		if err != nil {
			return err
		}
		fmt.Println(g.Mermaid())
		return nil
	}

	for _, name := range registry.Names() {
		tpl, err := registry.Get(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %s\n", tpl.Name, tpl.Description)
	}
	return nil
}
