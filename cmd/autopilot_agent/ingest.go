package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/voice-autopilot/internal/config"
	"github.com/jonathan/voice-autopilot/internal/knowledge"
	"github.com/jonathan/voice-autopilot/internal/llm"
)

var (
	ingestConfigPath string
	ingestDir        string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the knowledge index from a document directory",
	Long:  `Read .md, .txt, and .html documents from a directory, chunk and embed them, and store the vectors in the SQLite knowledge index.`,
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestConfigPath, "config", "", "Path to JSON config file")
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Document directory (overrides config knowledge_dir)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(ingestConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := ingestDir
	if dir == "" {
		dir = cfg.KnowledgeDir
	}
	if dir == "" {
		return fmt.Errorf("no document directory: pass --dir or set knowledge_dir")
	}

	ctx := context.Background()

	llmClient, err := llm.NewClient(ctx, nil, cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer llmClient.Close()

	index, err := knowledge.OpenIndex(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open knowledge index: %w", err)
	}
	defer index.Close()

	stats, err := knowledge.NewIngester(index, llmClient).Ingest(ctx, dir)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d documents (%d chunks) into %s\n", stats.Docs, stats.Chunks, cfg.IndexPath)
	return nil
}
