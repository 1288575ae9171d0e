package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/redline-go/internal/adapters/docx"
	"github.com/0xcro3dile/redline-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/redline-go/internal/adapters/llm"
	"github.com/0xcro3dile/redline-go/internal/adapters/loader"
	"github.com/0xcro3dile/redline-go/internal/adapters/parser"
	"github.com/0xcro3dile/redline-go/internal/adapters/playbook"
	"github.com/0xcro3dile/redline-go/internal/adapters/store"
	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/domain/irparse"
	"github.com/0xcro3dile/redline-go/internal/domain/ports"
	"github.com/0xcro3dile/redline-go/internal/domain/prefilter"
	"github.com/0xcro3dile/redline-go/internal/domain/textdiff"
	"github.com/0xcro3dile/redline-go/internal/domain/usecases"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/config"
	httpserver "github.com/0xcro3dile/redline-go/internal/infrastructure/http"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

var version = "0.1.0"

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "redline",
		Short: "Contract review against a clause playbook",
		Long: `Redline ingests contracts (.docx, JSON snapshots, plain text), reviews
them against a rule playbook through a local generation service, and
tracks accepted and rejected findings.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.LogMode, "log", cfg.LogMode, "log mode (dev or prod)")
	rootCmd.PersistentFlags().StringVar(&cfg.PlaybookPath, "playbook", cfg.PlaybookPath, "playbook file (.yaml or .json); built-in when empty")

	rootCmd.AddCommand(serveCmd(cfg))
	rootCmd.AddCommand(ingestCmd(cfg))
	rootCmd.AddCommand(parseCmd(cfg))
	rootCmd.AddCommand(diffCmd(cfg))
	rootCmd.AddCommand(rankCmd(cfg))
	rootCmd.AddCommand(watchCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired object graph shared by the commands.
type app struct {
	log      *logger.Logger
	store    ports.DocumentStore
	closer   func() error
	loader   *loader.MultiLoader
	rules    *playbook.Store
	ingest   *usecases.IngestUseCase
	review   *usecases.ReviewUseCase
	playbook string
}

// build wires adapters and use cases. persistent selects the sqlite store.
func build(cfg *config.Config, persistent bool) (*app, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	var (
		st     ports.DocumentStore
		closer = func() error { return nil }
	)
	if persistent {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		sqlite, err := store.NewSQLiteStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		st, closer = sqlite, sqlite.Close
	} else {
		st = store.NewMemoryStore()
	}

	rules, err := playbook.NewStore(cfg.PlaybookPath, log)
	if err != nil {
		closer()
		return nil, fmt.Errorf("loading playbook: %w", err)
	}

	lenient := parser.NewLenientParser()
	var textParser ports.DocumentParser = lenient
	if cfg.ExtractorURL != "" {
		svc := parser.NewServiceParser(cfg.ExtractorURL, log)
		healthCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if svc.IsServiceHealthy(healthCtx) {
			textParser = svc
		} else {
			log.Warn("extraction service unreachable, using local extractor", "url", cfg.ExtractorURL)
		}
		cancel()
	}

	gen := llm.NewOllamaAdapter(cfg.OllamaURL, cfg.OllamaModel, log)
	ingest := usecases.NewIngestUseCase(docx.NewDecoder(log), lenient, textParser, st, log)
	review := usecases.NewReviewUseCase(gen, rules, st, usecases.ReviewConfig{
		ChunkParagraphs: cfg.ChunkParagraphs,
		MaxCategories:   cfg.MaxCategories,
	}, log)
	review.OnDocumentChange(ingest.Refresh)

	return &app{
		log:      log,
		store:    st,
		closer:   closer,
		loader:   loader.NewMultiLoader(),
		rules:    rules,
		ingest:   ingest,
		review:   review,
		playbook: cfg.PlaybookPath,
	}, nil
}

func (a *app) Close() {
	if err := a.closer(); err != nil {
		a.log.Warn("closing store", "err", err)
	}
	a.log.Sync()
}

func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the inbox watcher when --inbox is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := httpserver.NewServer(a.ingest, a.review, a.store, a.loader, a.rules, cfg.Addr, a.log)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			if cfg.InboxDir != "" {
				g.Go(func() error { return a.watchInbox(gctx, cfg.InboxDir) })
			}
			if a.playbook != "" {
				g.Go(func() error { return a.watchPlaybook(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	cmd.Flags().StringVar(&cfg.DataDir, "data", cfg.DataDir, "data directory for the sqlite store")
	cmd.Flags().StringVar(&cfg.InboxDir, "inbox", cfg.InboxDir, "directory to watch for new contracts")
	cmd.Flags().StringVar(&cfg.OllamaURL, "ollama", cfg.OllamaURL, "generation service URL")
	cmd.Flags().StringVar(&cfg.OllamaModel, "model", cfg.OllamaModel, "generation model")
	return cmd
}

func ingestCmd(cfg *config.Config) *cobra.Command {
	var (
		format   string
		doReview bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Decode a contract and print its paragraphs as JSON",
		Long: `Decode a contract and print the paragraph view as JSON.

Example:
  redline ingest msa.docx
  redline ingest msa.docx --review`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.loader.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format != "" {
				src.Format = entities.ParseSourceFormat(format)
			}

			doc, err := a.ingest.Ingest(cmd.Context(), *src)
			if err != nil {
				return err
			}
			if !doReview {
				return printJSON(doc)
			}

			findings, err := a.review.Review(cmd.Context(), doc.ID)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"document": doc, "findings": findings})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "override the source format (docx, json, text)")
	cmd.Flags().BoolVar(&doReview, "review", false, "also review the document")
	cmd.Flags().StringVar(&cfg.ExtractorURL, "extractor", cfg.ExtractorURL, "remote text extraction service for unstructured files")
	return cmd
}

func parseCmd(cfg *config.Config) *cobra.Command {
	var docID string
	cmd := &cobra.Command{
		Use:   "parse <response-file>",
		Short: "Parse a generation response into findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			blocks := irparse.New(log).Parse(string(raw))
			return printJSON(irparse.ToFindings(blocks, docID))
		},
	}
	cmd.Flags().StringVar(&docID, "doc", "", "document id to attach to the findings")
	return cmd
}

func diffCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <original-file> <proposed-file>",
		Short: "Print the token diff of two texts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			original, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			proposed, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return printJSON(textdiff.New(log).Diff(string(original), string(proposed)))
		},
	}
}

func rankCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rank <text-file>",
		Short: "Rank playbook categories for a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			rules, err := playbook.NewStore(cfg.PlaybookPath, log)
			if err != nil {
				return err
			}
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return printJSON(prefilter.Scores(string(text), rules.Rules()))
		},
	}
}

func watchCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest contracts dropped into a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.InboxDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no directory given and REDLINE_INBOX_DIR is empty")
			}

			a, err := build(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watchInbox(ctx, dir)
		},
	}
	cmd.Flags().StringVar(&cfg.DataDir, "data", cfg.DataDir, "data directory for the sqlite store")
	return cmd
}

// watchInbox ingests every created or modified contract in dir. Failures are
// logged and never stop the watcher.
func (a *app) watchInbox(ctx context.Context, dir string) error {
	exts := []string{".docx", ".json", ".txt"}
	w, err := filewatcher.NewFSNotifyWatcher(exts, a.log)
	if err != nil {
		return fmt.Errorf("creating inbox watcher: %w", err)
	}
	defer w.Stop()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	a.log.Info("watching inbox", "dir", dir)

	for ev := range events {
		if ev.Operation == ports.FileDeleted {
			continue
		}
		src, err := a.loader.Load(ctx, ev.Path)
		if err != nil {
			a.log.Warn("inbox load failed", "path", ev.Path, "err", err)
			continue
		}
		if _, err := a.ingest.Ingest(ctx, *src); err != nil {
			a.log.Warn("inbox ingest failed", "path", ev.Path, "err", err)
		}
	}
	return nil
}

// watchPlaybook reloads the playbook when its file changes.
func (a *app) watchPlaybook(ctx context.Context) error {
	ext := strings.ToLower(filepath.Ext(a.playbook))
	w, err := filewatcher.NewFSNotifyWatcher([]string{ext}, a.log)
	if err != nil {
		return fmt.Errorf("creating playbook watcher: %w", err)
	}
	defer w.Stop()

	events, err := w.Watch(ctx, filepath.Dir(a.playbook))
	if err != nil {
		return fmt.Errorf("watching playbook: %w", err)
	}

	target := filepath.Clean(a.playbook)
	for ev := range events {
		if filepath.Clean(ev.Path) != target || ev.Operation == ports.FileDeleted {
			continue
		}
		if err := a.rules.Reload(); err == nil {
			a.log.Info("playbook reloaded", "name", a.rules.Name(), "rules", len(a.rules.Rules()))
		}
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
