package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/newsrag/config"
	"github.com/mohammad-safakhou/newsrag/internal/feed"
	"github.com/mohammad-safakhou/newsrag/internal/index"
	"github.com/mohammad-safakhou/newsrag/internal/ingest"
	"github.com/mohammad-safakhou/newsrag/provider"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var feedURL string
	var cronSpec string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch articles from a feed and index their embeddings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if feedURL == "" {
				feedURL = cfg.Ingest.FeedURL
			}
			if feedURL == "" {
				return fmt.Errorf("no feed url (--feed or ingest.feed_url)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			ix, err := index.New(ctx, cfg.Storage.Postgres)
			if err != nil {
				return err
			}
			defer ix.DB.Close()

			pipeline := &ingest.Pipeline{
				Fetcher:    feed.NewFetcher(cfg.Ingest),
				Embedder:   llm,
				Index:      ix,
				BatchSize:  cfg.Ingest.BatchSize,
				BatchDelay: cfg.Ingest.BatchDelay,
				Logger:     log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
			}

			if cronSpec != "" {
				expr, err := cronexpr.Parse(cronSpec)
				if err != nil {
					return fmt.Errorf("invalid cron expression: %w", err)
				}
				return pipeline.RunOnSchedule(ctx, feedURL, expr)
			}

			stats, err := pipeline.Run(ctx, feedURL)
			if err != nil {
				return err
			}
			fmt.Printf("ingested %d articles (%d fetched, %d skipped, %d failed batches)\n",
				stats.Upserted, stats.Fetched, stats.Skipped, stats.FailedBatches)
			return nil
		},
	}
	cmd.Flags().StringVar(&feedURL, "feed", "", "RSS feed URL")
	cmd.Flags().StringVar(&cronSpec, "cron", "", "repeat on a cron schedule instead of running once")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}
