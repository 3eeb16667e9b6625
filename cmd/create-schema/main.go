package main

import (
	"context"
	"flag"
	"fmt"

	"sentinel-edge/app"
	"sentinel-edge/config"
	"sentinel-edge/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	drop := flag.Bool("drop", false, "drop the existing reference_passages table first")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		logger.Log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := app.InitPostgres(ctx, cfg.Database.URL)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if *drop {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS reference_passages CASCADE"); err != nil {
			logger.Log.Fatalf("Failed to drop table: %v", err)
		}
		logger.Log.Info("Dropped existing reference_passages table")
	}

	schemaSQL := `
CREATE TABLE IF NOT EXISTS reference_passages (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    category VARCHAR(100) NOT NULL,
    source_document VARCHAR(255) NOT NULL,
    chunk_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    embedding vector(768),
    metadata JSONB DEFAULT '{}'::jsonb,
    created_at TIMESTAMP DEFAULT NOW(),
    CONSTRAINT passage_order_unique UNIQUE (source_document, chunk_index)
);`

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		logger.Log.Fatalf("Failed to create reference_passages table: %v", err)
	}
	logger.Log.Info("Created reference_passages table")

	indexes := []struct {
		name string
		sql  string
	}{
		{
			name: "Vector similarity search (HNSW)",
			sql: `CREATE INDEX IF NOT EXISTS idx_reference_embedding_hnsw ON reference_passages
USING hnsw (embedding vector_cosine_ops)
WITH (m = 16, ef_construction = 64);`,
		},
		{
			name: "Category filtering",
			sql:  "CREATE INDEX IF NOT EXISTS idx_reference_category ON reference_passages(category);",
		},
		{
			name: "Source document filtering",
			sql:  "CREATE INDEX IF NOT EXISTS idx_reference_source ON reference_passages(source_document);",
		},
	}

	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx.sql); err != nil {
			logger.Log.Warnf("Failed to create index %s: %v", idx.name, err)
		} else {
			logger.Log.Infof("Created index: %s", idx.name)
		}
	}

	fmt.Println("Knowledge-base schema ready: reference_passages")
}
