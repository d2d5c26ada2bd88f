package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/config"
	"document-archive-platform/internal/jobs"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/vectorstore"
	"document-archive-platform/models"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  ensure            - Create all tables and indexes if missing")
		fmt.Println("  recreate-vectors  - Rebuild embedding columns at EMBEDDING_DIMENSION and re-queue processed documents")
		os.Exit(1)
	}

	command := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()
	pool, err := config.NewPostgresPool(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	switch command {
	case "ensure":
		if err := ensureSchemas(ctx, pool, cfg); err != nil {
			log.Fatalf("Schema setup failed: %v", err)
		}
		fmt.Println("Schemas ensured successfully!")

	case "recreate-vectors":
		if err := recreateVectors(ctx, pool, cfg); err != nil {
			log.Fatalf("Vector rebuild failed: %v", err)
		}
		fmt.Println("Vector columns rebuilt successfully!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func ensureSchemas(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	if err := catalog.NewStore(pool, cfg.EmbeddingDimension).EnsureSchema(ctx); err != nil {
		return err
	}
	if err := jobs.NewQueue(pool, cfg.MaxActiveJobs).EnsureSchema(ctx); err != nil {
		return err
	}
	return vectorstore.NewStore(pool, cfg.EmbeddingDimension).EnsureSchema(ctx)
}

// recreateVectors drops every stored embedding and rebuilds the vector
// columns at the configured dimension. Processed documents fall back to
// approved and get a fresh processing job, so the pipeline re-embeds
// them at the new dimension.
func recreateVectors(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	fmt.Printf("Rebuilding vector columns at dimension %d...\n", cfg.EmbeddingDimension)

	stmts := []string{
		`DROP TABLE IF EXISTS document_chunks`,
		`ALTER TABLE documents DROP COLUMN IF EXISTS embedding`,
		fmt.Sprintf(`ALTER TABLE documents ADD COLUMN embedding vector(%d)`, cfg.EmbeddingDimension),
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild vector columns: %w", err)
		}
	}
	if err := vectorstore.NewStore(pool, cfg.EmbeddingDimension).EnsureSchema(ctx); err != nil {
		return err
	}

	rows, err := pool.Query(ctx,
		`UPDATE documents SET status = $1, processed_at = NULL, updated_at = NOW()
		 WHERE status = $2
		 RETURNING id`, models.DocStatusApproved, models.DocStatusProcessed)
	if err != nil {
		return fmt.Errorf("reset processed documents: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	queue := jobs.NewQueue(pool, cfg.MaxActiveJobs)
	requeued := 0
	for _, id := range ids {
		if _, _, err := queue.Enqueue(ctx, id, 0); err != nil {
			fmt.Printf("  could not re-queue document %d: %v\n", id, err)
			continue
		}
		requeued++
	}
	fmt.Printf("Re-queued %d of %d processed documents for re-embedding\n", requeued, len(ids))
	return nil
}
