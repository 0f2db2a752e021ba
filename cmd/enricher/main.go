package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spacesedan/stackenrich/config"
	"github.com/spacesedan/stackenrich/internal/bootstrap"
	"github.com/spacesedan/stackenrich/internal/enrich"
	"github.com/spacesedan/stackenrich/internal/logging"
	"github.com/spacesedan/stackenrich/internal/models"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	cfg := config.Load()
	logging.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		slog.Error("[Main] Enrichment failed",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	var input string
	var loadIdentities bool

	cmd := &cobra.Command{
		Use:   "enricher",
		Short: "Enrich StackExchange items into OpenSearch",
		Long: `Read perceval StackExchange items as JSON lines, project every question
and answer into an enriched record and bulk index them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd.Context(), cfg, input, loadIdentities)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "File with raw items, - for stdin")
	cmd.Flags().BoolVar(&loadIdentities, "load-identities", false, "Register item authors in the identity store before enriching")
	cmd.Flags().StringVar(&cfg.EnrichIndex, "index", cfg.EnrichIndex, "Index to write enriched records to")
	cmd.Flags().IntVar(&cfg.MaxItemsBulk, "max-items-bulk", cfg.MaxItemsBulk, "Records per bulk request")
	cmd.Flags().BoolVar(&cfg.SortinghatEnabled, "sortinghat", cfg.SortinghatEnabled, "Add author identity fields to every record")

	cmd.AddCommand(newMappingsCmd())
	return cmd
}

func newMappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "Print the index mappings for enriched records",
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings := enrich.NewEnricher(nil).ElasticMappings()
			out := make(map[string]json.RawMessage, len(mappings))
			for name, body := range mappings {
				out[name] = json.RawMessage(body)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func runEnrich(ctx context.Context, cfg config.Config, input string, loadIdentities bool) error {
	if loadIdentities && !cfg.SortinghatEnabled {
		return errors.New("--load-identities requires identity enrichment to be enabled")
	}

	r, closeInput, err := openInput(input)
	if err != nil {
		return err
	}
	defer closeInput()

	services, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	items := models.DecodeRawItems(r)
	if loadIdentities {
		buffered, err := collect(items)
		if err != nil {
			return err
		}
		if err := registerIdentities(ctx, services, buffered); err != nil {
			return err
		}
		items = models.Items(buffered)
	}

	return services.Enricher.EnrichItems(ctx, items)
}

func registerIdentities(ctx context.Context, services *bootstrap.Services, items []models.RawItem) error {
	var candidates []models.IdentityCandidate
	for _, item := range items {
		ids, err := services.Enricher.Identities(item)
		if err != nil {
			return fmt.Errorf("[Main] failed to extract identities: %w", err)
		}
		candidates = append(candidates, ids...)
	}

	added, err := services.Identities.RegisterIdentities(ctx, candidates)
	if err != nil {
		return err
	}
	slog.Info("[Main] Loaded identities",
		slog.Int("items", len(items)),
		slog.Int64("added", added))
	return nil
}

func collect(items iter.Seq2[models.RawItem, error]) ([]models.RawItem, error) {
	var out []models.RawItem
	for item, err := range items {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("[Main] failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}
