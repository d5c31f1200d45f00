// Package main implements a standalone seed script that populates the forum
// tables with realistic test data and then asks the running forum service to
// rebuild its index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/utafrali/EcommerceGo/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

// --------------------------------------------------------------------------
// Configuration helpers
// --------------------------------------------------------------------------

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

// --------------------------------------------------------------------------
// Seed data definitions
// --------------------------------------------------------------------------

var forums = []string{"Orders", "Shipping", "Returns", "Payments", "Product Q&A"}

var customers = []string{"Alice", "Bob", "Carol", "Dave", "Alice", "Erin", "Frank", "Grace"}

var subjects = []string{
	"Shipping delay on my order",
	"Refund still pending",
	"Wrong size delivered",
	"Payment declined twice",
	"Is this blender dishwasher safe",
	"Tracking number not working",
	"Warranty claim for headphones",
	"Coupon code rejected at checkout",
}

var phrases = []string{
	"my package has not shipped yet",
	"the courier says the shipping label was never scanned",
	"I returned the item two weeks ago",
	"support asked me to open a forum thread",
	"the product page said it ships in two days",
	"I was charged but the order shows as cancelled",
	"does anyone know how long refunds take",
	"the replacement arrived damaged as well",
}

// --------------------------------------------------------------------------
// Main
// --------------------------------------------------------------------------

func main() {
	log := logger.NewWithOptions(logger.Options{
		Service: "forum-seed",
		Level:   getEnv("LOG_LEVEL", "info"),
		Format:  logger.FormatText,
	})

	if err := run(log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("POSTGRES_USER", "ecommerce"),
		getEnv("POSTGRES_PASSWORD", "ecommerce_secret"),
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("FORUM_DB_NAME", "forum_db"),
		getEnv("POSTGRES_SSL_MODE", "disable"),
	)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	topics := getEnvInt("SEED_TOPICS", 200)
	postsPerTopic := getEnvInt("SEED_POSTS_PER_TOPIC", 8)
	rng := rand.New(rand.NewPCG(42, 7))

	if err := seed(ctx, pool, rng, topics, postsPerTopic); err != nil {
		return err
	}
	log.Info("forum data seeded",
		slog.Int("topics", topics),
		slog.Int("posts", topics*postsPerTopic),
	)

	addr := getEnv("FORUM_ADDR", "http://localhost:8014")
	if err := triggerReindex(ctx, addr, os.Getenv("FORUM_ADMIN_TOKEN")); err != nil {
		log.Warn("reindex request failed, run forumctl reindex once the service is up",
			slog.String("error", err.Error()),
		)
		return nil
	}
	log.Info("reindex started", slog.String("addr", addr))
	return nil
}

// seed inserts forums, customers, topics and posts inside one transaction.
func seed(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, topics, postsPerTopic int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i, name := range forums {
		batch.Queue(`INSERT INTO forums (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, i+1, name)
	}
	// Customer ids start at 11; two of them share the display name "Alice".
	for i, name := range customers {
		batch.Queue(`INSERT INTO forum_customers (id, display_name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`, i+11, name)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed forums and customers: %w", err)
	}

	start := time.Now().UTC().AddDate(0, -6, 0)
	var rows [][]any
	for t := 0; t < topics; t++ {
		forumID := int64(rng.IntN(len(forums)) + 1)
		customerID := int64(rng.IntN(len(customers)) + 11)
		subject := subjects[rng.IntN(len(subjects))]
		created := start.Add(time.Duration(t) * time.Hour)

		var topicID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO forum_topics (forum_id, customer_id, subject, num_posts, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
			forumID, customerID, subject, postsPerTopic, created,
		).Scan(&topicID)
		if err != nil {
			return fmt.Errorf("insert topic %d: %w", t+1, err)
		}

		for p := 0; p < postsPerTopic; p++ {
			author := customerID
			if p > 0 {
				author = int64(rng.IntN(len(customers)) + 11)
			}
			text := phrases[rng.IntN(len(phrases))] + ", " + phrases[rng.IntN(len(phrases))]
			rows = append(rows, []any{topicID, forumID, author, subject, text, created.Add(time.Duration(p) * time.Minute)})
		}
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"forum_posts"},
		[]string{"topic_id", "forum_id", "customer_id", "subject", "text", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy posts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}

func triggerReindex(ctx context.Context, addr, token string) error {
	client := httpclient.New(httpclient.DefaultConfig("forum-seed"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/v1/forum/reindex", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return httpclient.ParseResponseError(resp, "forum-service")
	}
	return resp.Body.Close()
}
