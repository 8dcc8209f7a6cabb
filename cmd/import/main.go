package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/timmy/geoimport/internal/config"
	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/importer/transform"
	"github.com/timmy/geoimport/internal/logger"
	"github.com/timmy/geoimport/internal/repository"
	"github.com/timmy/geoimport/internal/source"
	"github.com/timmy/geoimport/internal/style"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	appLogger := logger.New(&logger.Options{
		Level:       "info",
		Format:      "text",
		ServiceName: "geoimport-cli",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	workspace := flag.String("workspace", "", "Target workspace (default: the catalog default)")
	store := flag.String("store", "", "Target store (default: one store per format)")
	srs := flag.String("srs", "", "SRS assigned to items that declare none, e.g. EPSG:4326")
	manifestPath := flag.String("manifest", "", "JSON Lines manifest of sources to import (file or directory)")
	var renames, drops listFlag
	flag.Var(&renames, "rename", "Rename an attribute, as old=new (repeatable)")
	flag.Var(&drops, "drop", "Remove an attribute (repeatable)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file|dir|archive>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 && *manifestPath == "" {
		flag.Usage()
		return 2
	}

	var entries []source.Entry
	if *manifestPath != "" {
		manifest, err := source.Load(*manifestPath)
		if err != nil {
			appLogger.WithError(err).Error("Failed to load manifest")
			return 1
		}
		for _, reason := range manifest.Skipped {
			appLogger.WithField("manifest", manifest.Path).Warnf("Skipping manifest entry: %s", reason)
		}
		entries = append(entries, manifest.Entries...)
	}
	for _, p := range flag.Args() {
		entries = append(entries, source.Entry{Path: p})
	}
	if len(entries) == 0 {
		appLogger.Error("Nothing to import")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Error("Failed to load config")
		return 1
	}
	if cfg.Log.Level != "" {
		appLogger = logger.New(&logger.Options{Level: cfg.Log.Level, Format: "text", ServiceName: "geoimport-cli"})
		logger.SetDefaultLogger(appLogger)
	}

	chain, err := buildChain(renames, drops)
	if err != nil {
		appLogger.WithError(err).Error("Invalid transform flags")
		return 2
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Error("Failed to initialize database")
		return 1
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog := repository.NewCatalogRepository(db)
	if err := catalog.EnsureDefaults(ctx, cfg.Importer.DefaultWorkspace, cfg.Importer.Workspaces...); err != nil {
		appLogger.WithError(err).Error("Failed to seed catalog")
		return 1
	}

	if cfg.Styles.Enabled {
		resolver := style.NewResolver(&style.ClientConfig{
			BaseURL: cfg.Styles.BaseURL,
			APIKey:  cfg.Styles.APIKey,
			Timeout: cfg.Styles.Timeout,
		}, catalog)
		chain = append(chain, transform.NewStyleLookup(resolver, cfg.Styles.Lenient))
	}
	manager := importer.NewManager(catalog, &importer.Config{ScratchDir: cfg.Importer.ScratchDir},
		importer.WithRunLog(repository.NewImportRunRepository(db)),
		importer.WithLogger(appLogger),
		importer.WithDefaultTransforms(chain...),
	)
	defer manager.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	state, err := runImport(ctx, manager, importer.TargetSpec{Workspace: *workspace, Store: *store}, entries, *srs)
	if err != nil {
		appLogger.WithError(err).Error("Import failed")
	}
	if state != importer.ContextComplete {
		return 1
	}
	return 0
}

// buildChain turns the -rename and -drop flags into a transform chain.
func buildChain(renames, drops []string) ([]importer.Transform, error) {
	var chain []importer.Transform
	for _, r := range renames {
		from, to, ok := strings.Cut(r, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("rename %q: expected old=new", r)
		}
		chain = append(chain, transform.NewAttributeRename(from, to))
	}
	if len(drops) > 0 {
		chain = append(chain, transform.NewAttributeRemove(drops...))
	}
	return chain, nil
}

// runImport imports entries into one context, applies the per-entry
// overrides, assigns srs to items still missing one, commits and prints the
// outcome of every item.
func runImport(ctx context.Context, m *importer.Manager, target importer.TargetSpec, entries []source.Entry, srs string) (importer.ContextState, error) {
	id, err := m.CreateContext(ctx, target)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		taskID, err := m.AddTask(ctx, id, importer.Source{Path: e.Path, Name: e.Name})
		if err != nil {
			return "", fmt.Errorf("add %s: %w", e.Path, err)
		}
		task, err := m.GetTask(id, taskID)
		if err != nil {
			return "", err
		}
		for _, it := range task.Items {
			patch := entryPatch(e, len(task.Items) == 1)
			if patch.SRS == nil && srs != "" && it.State == importer.ItemNoCRS {
				patch.SRS = &srs
			}
			if patch.Empty() || it.State == importer.ItemNoFormat {
				continue
			}
			if it.State == importer.ItemNoCRS && patch.SRS == nil {
				logger.Warn("%s item %d has no SRS, pass -srs or set srs in the manifest", task.Name, it.ID)
				continue
			}
			if _, err := m.UpdateItem(ctx, id, taskID, it.ID, patch); err != nil {
				return "", fmt.Errorf("update %s item %d: %w", task.Name, it.ID, err)
			}
		}
	}

	state, runErr := m.RunContext(ctx, id)
	snap, err := m.GetContext(id)
	if err != nil {
		return state, err
	}
	printSnapshot(os.Stdout, snap)
	return state, runErr
}

// entryPatch turns manifest overrides into an item patch. A layer name only
// applies when the source yields a single item.
func entryPatch(e source.Entry, single bool) importer.ItemPatch {
	var p importer.ItemPatch
	if e.SRS != "" {
		p.SRS = &e.SRS
	}
	if e.Layer != "" && single {
		p.Layer = &e.Layer
	}
	if e.Style != "" {
		p.Style = &e.Style
	}
	return p
}

func printSnapshot(out io.Writer, snap importer.ContextSnapshot) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tITEM\tLAYER\tSTORE\tSTATE\tDETAIL")
	for _, t := range snap.Tasks {
		for _, it := range t.Items {
			detail := ""
			if n := len(it.Errors); n > 0 {
				detail = it.Errors[n-1].Message
			}
			fmt.Fprintf(w, "%s\t%d\t%s:%s\t%s\t%s\t%s\n",
				t.Name, it.ID, it.Target.Workspace, it.Target.Layer, it.Target.Store, it.State, detail)
		}
	}
	w.Flush()
	fmt.Fprintf(out, "import %d: %s\n", snap.ID, snap.State)
}
