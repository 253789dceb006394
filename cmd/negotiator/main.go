// cmd/negotiator/main.go
//
// This is the entry point for the negotiator CLI.
//
//	negotiator run       run one negotiation in the terminal view (or --plain JSON lines)
//	negotiator serve     expose the engine over HTTP with a server-sent event stream
//	negotiator products  list the catalog
//	negotiator validate-catalog path/to/catalog.yaml
//
// Every command reads .negotiator/config.yaml from the project directory,
// creating it with defaults on first use.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/config"
	"github.com/KaioH3/negotiation-agent/internal/eventbridge"
	"github.com/KaioH3/negotiation-agent/internal/logging"
	"github.com/KaioH3/negotiation-agent/internal/metrics"
	"github.com/KaioH3/negotiation-agent/internal/negotiation"
	"github.com/KaioH3/negotiation-agent/internal/quote"
	"github.com/KaioH3/negotiation-agent/internal/responder"
	"github.com/KaioH3/negotiation-agent/internal/tui"
)

const usage = `Usage:
  negotiator run [--project dir] [--qty CODE=N ...] [--quantities-file f.yaml] [--note text] [--plain]
  negotiator serve [--project dir] [--port N]
  negotiator products [--project dir]
  negotiator validate-catalog path/to/catalog.yaml`

func main() {
	if handleValidateCatalogCommand() {
		return
	}
	command := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "run":
		runCommand(args)
	case "serve":
		serveCommand(args)
	case "products":
		productsCommand(args)
	case "help":
		fmt.Println(usage)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

// runtime bundles what every command needs from the project directory.
type runtime struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	logger  *logging.Logger
	metrics *metrics.Collectors
	factory *responder.Factory
}

func setup(ctx context.Context, project string) (*runtime, error) {
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		project = cwd
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.InitDir(absoluteProject); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.NegotiatorDir, err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(absoluteProject)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	rc := cfg.ResolvedResponder()
	backend, err := responder.NewBackend(ctx, rc, cat)
	if err != nil {
		logger.Close()
		return nil, err
	}
	factory, err := responder.NewFactory(backend, cat, responder.WithTimeout(rc.Timeout), responder.WithMetrics(m))
	if err != nil {
		logger.Close()
		return nil, err
	}
	logger.Info("Session opened · provider %s · model %s · protocol %s · failure policy %s",
		rc.Provider, rc.Model, cfg.Project.Protocol, cfg.Project.FailurePolicy)
	return &runtime{cfg: cfg, catalog: cat, logger: logger, metrics: m, factory: factory}, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if path := cfg.CatalogPath(); path != "" {
		return catalog.Load(path)
	}
	return catalog.Default()
}

// engine builds a negotiation engine configured from the project settings.
func (rt *runtime) engine(extra ...negotiation.Option) (*negotiation.Engine, error) {
	variant := negotiation.VariantRich
	if !rt.cfg.RichProtocol() {
		variant = negotiation.VariantLegacy
	}
	policy := negotiation.FailRun
	if rt.cfg.DegradeOnFailure() {
		policy = negotiation.Degrade
	}
	opts := []negotiation.Option{
		negotiation.WithVariant(variant),
		negotiation.WithFailurePolicy(policy),
		negotiation.WithMaxParallel(rt.cfg.Project.MaxParallel),
		negotiation.WithAudit(rt.cfg.Project.Audit),
		negotiation.WithLogger(rt.logger),
		negotiation.WithMetrics(rt.metrics),
	}
	return negotiation.New(rt.catalog, rt.factory, append(opts, extra...)...)
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	project := fs.String("project", "", "path to the project directory (defaults to cwd)")
	quantitiesFile := fs.String("quantities-file", "", "YAML file mapping product code to units")
	note := fs.String("note", "", "free-text sourcing note added to the RFQ")
	plain := fs.Bool("plain", false, "print events as JSON lines instead of the terminal view")
	timeout := fs.Duration("timeout", 0, "overall run deadline (0 disables)")
	quantities := quantityFlag{}
	fs.Var(&quantities, "qty", "requested units (CODE=N, repeatable)")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	rt, err := setup(ctx, *project)
	if err != nil {
		die("%v", err)
	}
	defer rt.logger.Close()

	req, err := buildRequest(*quantitiesFile, quantities, *note)
	if err != nil {
		rt.die("load quantities: %v", err)
	}

	if *plain {
		runPlain(ctx, rt, req)
		return
	}

	// The state hook fires only during Run, after app is assigned.
	var app *tui.App
	eng, err := rt.engine(negotiation.WithStateHook(func(runID string, s negotiation.State) {
		app.StateHook()(runID, s)
	}))
	if err != nil {
		rt.die("%v", err)
	}
	app = tui.NewApp(rt.catalog, tui.WithRunner(eng, req), tui.WithLog(rt.logger))
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		rt.die("Error running TUI: %v", err)
	}
	result, runErr := app.Result()
	if runErr != nil {
		rt.die("negotiation failed: %v (log: %s)", runErr, rt.logger.Path())
	}
	if result != nil {
		printSummary(rt.catalog, result)
	}
}

func runPlain(ctx context.Context, rt *runtime, req negotiation.Request) {
	eng, err := rt.engine()
	if err != nil {
		rt.die("%v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	sink := negotiation.EmitterFunc(func(ev negotiation.Event) {
		if err := enc.Encode(ev); err != nil {
			rt.logger.Warn("write event %s: %v", ev.Type, err)
		}
	})
	if _, err := eng.Run(ctx, req, sink); err != nil {
		rt.die("negotiation failed: %v", err)
	}
}

func printSummary(cat *catalog.Catalog, result *negotiation.Result) {
	name := result.Winner
	if profile, ok := cat.Supplier(result.Winner); ok {
		name = profile.Name
	}
	score := result.Scores[result.Winner]
	fmt.Printf("Selected supplier: %s (overall %.1f/10)\n", name, score.Total)
	if neg := result.Suppliers[result.Winner]; neg != nil && neg.FinalQuote != nil {
		fmt.Printf("Final quote: %s · %d days · %s\n",
			quote.WholeDollars(neg.FinalQuote.TotalValue), neg.FinalQuote.LeadTimeDays, neg.FinalQuote.PaymentTerms)
	}
	if result.Audit != nil {
		fmt.Printf("Audit: %s\n", result.Audit.Verdict)
	}
	for id, reason := range result.Failures {
		fmt.Printf("Dropped %s: %s\n", id, reason)
	}
}

func serveCommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	project := fs.String("project", "", "path to the project directory (defaults to cwd)")
	port := fs.Int("port", 0, "listen port (overrides config and NEGOTIATOR_HTTP_PORT)")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, *project)
	if err != nil {
		die("%v", err)
	}
	defer rt.logger.Close()

	settings := rt.cfg.Project.Server
	if *port > 0 {
		settings.Port = *port
	}
	enabled := true
	settings.Enabled = &enabled
	eng, err := rt.engine()
	if err != nil {
		rt.die("%v", err)
	}
	srv, err := eventbridge.NewServer(settings, eng, rt.catalog,
		eventbridge.WithMetrics(rt.metrics),
		eventbridge.WithLogger(rt.logger))
	if err != nil {
		rt.die("%v", err)
	}
	if err := srv.Start(ctx); err != nil {
		rt.die("start server: %v", err)
	}
	fmt.Printf("Negotiator listening on %s\n", srv.BaseURL())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.die("shutdown: %v", err)
	}
}

func productsCommand(args []string) {
	fs := flag.NewFlagSet("products", flag.ExitOnError)
	project := fs.String("project", "", "path to the project directory (defaults to cwd)")
	_ = fs.Parse(args)

	cfg, err := loadProjectConfig(*project)
	if err != nil {
		die("%v", err)
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		die("%v", err)
	}
	for _, p := range cat.Products() {
		fmt.Printf("%s  %-40s target %s  default %s units\n", p.Code, p.Name, quote.Dollars(p.TargetPrice), quote.Units(p.DefaultQuantity))
	}
	fmt.Println()
	for _, s := range cat.Suppliers() {
		fmt.Printf("%-10s %-24s quality %.1f  lead %s  %s\n", s.ID, s.Name, s.Quality, s.LeadTimeRange, s.PaymentTerms)
	}
}

func loadProjectConfig(project string) (*config.Config, error) {
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		project = cwd
	}
	return config.NewConfig(project)
}

var exit = os.Exit

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	exit(1)
}

// die records the failure and closes the log before exiting, since deferred
// calls do not run on os.Exit.
func (rt *runtime) die(format string, args ...any) {
	rt.logger.Error(format, args...)
	rt.logger.Close()
	die(format, args...)
}
