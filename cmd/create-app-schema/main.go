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

	tables := []struct {
		name string
		sql  string
	}{
		{
			name: "users",
			sql: `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);`,
		},
		{
			// uploads may be anonymous when basic auth is off
			name: "files",
			sql: `
CREATE TABLE IF NOT EXISTS files (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID REFERENCES users(id) ON DELETE CASCADE,
    filename VARCHAR(255) NOT NULL,
    mime_type VARCHAR(100) NOT NULL,
    size BIGINT NOT NULL,
    storage_path TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);`,
		},
		{
			name: "analysis_jobs",
			sql: `
CREATE TABLE IF NOT EXISTS analysis_jobs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    file_id UUID REFERENCES files(id) ON DELETE SET NULL,
    filename VARCHAR(255) NOT NULL,
    mode VARCHAR(50) NOT NULL CHECK (mode IN ('legal_risk_scoring', 'pii_masking', 'vulnerability_detection')),
    user_prompt TEXT NOT NULL DEFAULT '',
    status VARCHAR(50) NOT NULL DEFAULT 'pending',
    progress INTEGER NOT NULL DEFAULT 0,
    current_step VARCHAR(100),
    steps JSONB NOT NULL DEFAULT '[]'::jsonb,
    result JSONB,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW(),
    completed_at TIMESTAMP
);`,
		},
	}

	for _, t := range tables {
		if _, err := pool.Exec(ctx, t.sql); err != nil {
			logger.Log.Fatalf("Failed to create %s table: %v", t.name, err)
		}
		logger.Log.Infof("Created %s table", t.name)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_files_user_id ON files(user_id);",
		"CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);",
		"CREATE INDEX IF NOT EXISTS idx_analysis_jobs_completed_at ON analysis_jobs(completed_at DESC) WHERE status = 'completed';",
	}
	for _, sql := range indexes {
		if _, err := pool.Exec(ctx, sql); err != nil {
			logger.Log.Warnf("Failed to create index: %v", err)
		}
	}

	fmt.Println("Application schema ready: users, files, analysis_jobs")
}
