package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	_ "github.com/PSU3D0/quickscript/examples/basic"
	"github.com/PSU3D0/quickscript/pkg/collect"
	"github.com/PSU3D0/quickscript/pkg/config"
	"github.com/PSU3D0/quickscript/pkg/frame"
	"github.com/PSU3D0/quickscript/pkg/function"
	"github.com/PSU3D0/quickscript/pkg/schema"
	"github.com/PSU3D0/quickscript/pkg/server/graphqlsrv"
	"github.com/PSU3D0/quickscript/pkg/server/grpcsrv"
	"github.com/PSU3D0/quickscript/pkg/server/mcpsrv"
	"github.com/PSU3D0/quickscript/pkg/server/natssrv"
	"github.com/PSU3D0/quickscript/pkg/server/rest"
	"github.com/PSU3D0/quickscript/pkg/telemetry"
)

const version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	ScriptsDir string
	Units      []string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.LoadWithProfile(global.ConfigPath, global.Profile)
	if err != nil {
		fatal(err)
	}
	if global.ScriptsDir != "" {
		cfg.Scripts.Dir = global.ScriptsDir
	}
	applyRuntimeConfig(cfg)

	col := assembleCollection(global, cfg)

	switch args[0] {
	case "list":
		ensureNoArgs(args[1:])
		runList(global, col)
	case "run":
		runFunction(ctx, global, col, args[1:])
	case "serve":
		runServe(ctx, global, cfg, col, args[1:])
	case "help":
		printUsage()
	case "version":
		fmt.Println(version)
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		Timeout: 30 * time.Second,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--profile":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --profile")
			}
			flags.Profile = args[i+1]
			i++
		case strings.HasPrefix(arg, "--profile="):
			flags.Profile = strings.TrimPrefix(arg, "--profile=")
		case arg == "--scripts":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --scripts")
			}
			flags.ScriptsDir = args[i+1]
			i++
		case strings.HasPrefix(arg, "--scripts="):
			flags.ScriptsDir = strings.TrimPrefix(arg, "--scripts=")
		case arg == "--unit":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --unit")
			}
			flags.Units = append(flags.Units, args[i+1])
			i++
		case strings.HasPrefix(arg, "--unit="):
			flags.Units = append(flags.Units, strings.TrimPrefix(arg, "--unit="))
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// applyRuntimeConfig applies the reloadable subset of the config: the
// process-wide typecheck flag and the log handler.
func applyRuntimeConfig(cfg *config.Config) {
	function.SetRuntimeTypechecking(cfg.Runtime.Typechecking)
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

// watchConfig hot-reloads the runtime config while a server runs. The
// caller must Stop the returned watcher.
func watchConfig(ctx context.Context, path string) (*config.Watcher, error) {
	watcher, err := config.NewWatcher([]string{path},
		config.WithWatchInterval(1*time.Second))
	if err != nil {
		return nil, err
	}
	watcher.OnChange(applyRuntimeConfig)
	watcher.Start(ctx)
	return watcher, nil
}

// assembleCollection unions explicitly named units with whatever the
// scripts directory discovers. Discovery is best effort; a missing
// directory just yields nothing.
func assembleCollection(flags globalFlags, cfg *config.Config) *collect.Collection {
	col := collect.New("quickscript")
	for _, unit := range flags.Units {
		col.AddCollection(collect.FromUnit(unit))
	}
	if cfg.Scripts.Dir != "" {
		col.AddCollection(collect.FromDir(cfg.Scripts.Dir))
	}
	if col.Len() == 0 {
		// Nothing named and nothing discovered: serve the bundled demo
		// unit so the binary does something out of the box.
		col.AddCollection(collect.FromUnit("basic"))
	}
	return col
}

type listEntry struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Shape      string   `json:"shape"`
	Namespaces []string `json:"namespaces,omitempty"`
	Doc        string   `json:"doc,omitempty"`
}

func runList(flags globalFlags, col *collect.Collection) {
	entries := make([]listEntry, 0, col.Len())
	for _, f := range col.All() {
		entries = append(entries, listEntry{
			Name:       f.Name(),
			Category:   string(f.Category()),
			Shape:      string(f.Contract().Shape),
			Namespaces: f.Namespaces(),
			Doc:        f.Doc(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if flags.JSON {
		printJSON(entries)
		return
	}

	writer := newTabWriter()
	writeRow(writer, "NAME", "CATEGORY", "SHAPE", "NAMESPACES", "DOC")
	for _, e := range entries {
		writeRow(writer, e.Name, e.Category, e.Shape, strings.Join(e.Namespaces, ","), e.Doc)
	}
	_ = writer.Flush()
}

type runOutput struct {
	RunID    string         `json:"run_id"`
	Function string         `json:"function"`
	Duration string         `json:"duration"`
	Result   any            `json:"result,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func runFunction(ctx context.Context, flags globalFlags, col *collect.Collection, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: quickscript run <name> [--field value ...]"))
	}
	name := args[0]
	f, ok := col.Find(name)
	if !ok {
		fatal(fmt.Errorf("function %q not found; try 'quickscript list'", name))
	}

	payload, err := parsePayload(f, args[1:])
	if err != nil {
		fatal(err)
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, flags.Timeout)
	defer cancel()
	ctx = function.WithInvocationID(ctx, runID)

	start := time.Now()
	result, err := f.Invoke(ctx, payload)
	elapsed := time.Since(start)
	if err != nil {
		fatal(err)
	}

	out := runOutput{
		RunID:    runID,
		Function: f.Name(),
		Duration: elapsed.Round(time.Microsecond).String(),
		Meta:     result.Meta,
	}

	if flags.JSON {
		out.Result = jsonResult(result.Value)
		printJSON(out)
		return
	}

	fmt.Printf("%s finished in %s (run %s)\n", f.Name(), out.Duration, out.RunID)
	printHuman(result.Value)
	if len(result.Meta) > 0 {
		fmt.Println("meta:")
		printJSON(result.Meta)
	}
}

// parsePayload turns per-field flags derived from the argument record
// into a string payload map. Values coerce weakly downstream, the same
// as query parameters.
func parsePayload(f *function.Function, args []string) (any, error) {
	arg := f.Contract().ArgType
	if arg == nil {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s takes no arguments", f.Name())
		}
		return nil, nil
	}

	cmd := flag.NewFlagSet("run "+f.Name(), flag.ContinueOnError)
	fields := schema.Fields(arg)
	values := make(map[string]*string, len(fields))
	for _, fld := range fields {
		usage := fld.Doc
		if usage == "" {
			usage = fld.Kind.String()
			if fld.Required {
				usage += " (required)"
			}
		}
		values[fld.Name] = cmd.String(fld.Name, fld.Default, usage)
	}
	if err := cmd.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	cmd.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	payload := map[string]string{}
	for name, value := range values {
		if set[name] || *value != "" {
			payload[name] = *value
		}
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

// jsonResult shapes a result value for JSON output.
func jsonResult(value any) any {
	switch v := value.(type) {
	case *frame.Schema:
		return map[string]any{"columns": v.Frame().Columns(), "records": v.Frame().Records()}
	case frame.Frame:
		return map[string]any{"columns": v.Columns(), "records": v.Records()}
	default:
		return value
	}
}

// printHuman renders frames as a table and everything else as JSON.
func printHuman(value any) {
	if value == nil {
		return
	}
	var fr frame.Frame
	switch v := value.(type) {
	case *frame.Schema:
		fr = v.Frame()
	case frame.Frame:
		fr = v
	default:
		printJSON(value)
		return
	}

	writer := newTabWriter()
	cols := fr.Columns()
	writeRow(writer, cols...)
	for _, record := range fr.Records() {
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i] = fmt.Sprint(record[col])
		}
		writeRow(writer, row...)
	}
	_ = writer.Flush()
}

func runServe(ctx context.Context, flags globalFlags, cfg *config.Config, col *collect.Collection, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: quickscript serve <rest|grpc|graphql|nats|mcp>"))
	}

	shutdown, err := telemetry.InitWithConfig("quickscript", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.NewInvocationMetrics(ctx)
	if err != nil {
		fatal(err)
	}

	if flags.ConfigPath != "" {
		watcher, err := watchConfig(ctx, flags.ConfigPath)
		if err != nil {
			fatal(err)
		}
		defer watcher.Stop()
	}

	switch args[0] {
	case "rest":
		srv := rest.New(col, rest.WithAddr(cfg.Servers.REST.Addr), rest.WithMetrics(metrics))
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.Start(); err != nil {
			fatal(err)
		}
	case "grpc":
		srv := grpcsrv.New(col, grpcsrv.WithMetrics(metrics))
		if err := grpcsrv.Serve(ctx, cfg.Servers.GRPC.Addr, srv); err != nil {
			fatal(err)
		}
	case "graphql":
		srv, err := graphqlsrv.New(col,
			graphqlsrv.WithAddr(cfg.Servers.GraphQL.Addr),
			graphqlsrv.WithMetrics(metrics))
		if err != nil {
			fatal(err)
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.Start(); err != nil {
			fatal(err)
		}
	case "nats":
		nc, err := natssrv.Connect(cfg.Servers.NATS.URL)
		if err != nil {
			fatal(err)
		}
		defer nc.Close()

		srv := natssrv.New(nc, col, natssrv.WithMetrics(metrics))
		if err := srv.Start(ctx); err != nil {
			fatal(err)
		}
		<-ctx.Done()
		srv.Stop()
	case "mcp":
		srv := mcpsrv.New("quickscript", version, col, mcpsrv.WithMetrics(metrics))
		if err := srv.ServeStdio(); err != nil {
			fatal(err)
		}
	default:
		fatal(fmt.Errorf("unknown serve target %q", args[0]))
	}
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func printUsage() {
	fmt.Print(`quickscript - expose Go functions over REST, gRPC, GraphQL, NATS, and MCP

Usage:
  quickscript [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --profile <name>     Overlay config.<name>.yaml
  --scripts <dir>      Manifest directory (overrides config)
  --unit <name>        Load a registered unit (repeatable)
  --timeout <dur>      Invocation timeout (default 30s)
  --json               JSON output

Commands:
  list
  run <name> [--field value ...]
  serve rest
  serve grpc
  serve graphql
  serve nats
  serve mcp
  version
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected args: %v", args))
	}
}
