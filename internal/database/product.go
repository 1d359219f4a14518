package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/review-scraper/internal/models"
)

const (
	// EventSnapshotPersisted is emitted for every committed snapshot.
	EventSnapshotPersisted = "SNAPSHOT_PERSISTED"

	// SnapshotStream is the Redis stream the relay publishes snapshot events to.
	SnapshotStream = "stream:product_snapshots"
)

// SnapshotPayload is the body of a SNAPSHOT_PERSISTED event.
type SnapshotPayload struct {
	ProductID   int64         `json:"product_id"`
	URL         string        `json:"url"`
	Name        string        `json:"name"`
	Price       float64       `json:"price"`
	Rating      float64       `json:"rating"`
	ReviewCount *int          `json:"review_count"`
	Reviews     int           `json:"reviews"`
	Images      int           `json:"images"`
	Status      models.Status `json:"status"`
	ScrapedAt   time.Time     `json:"scraped_at"`
}

// ProductRecord is a persisted snapshot with its row metadata.
type ProductRecord struct {
	ID int64 `json:"id"`
	models.Snapshot
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductRepository stores snapshots keyed by product URL.
type ProductRepository struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewProductRepository(db *DB, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
		logger: logger.With("component", "product_repository"),
	}
}

// Upsert writes snap in one transaction: the product row is inserted or
// updated by URL, its images and reviews are replaced and a
// SNAPSHOT_PERSISTED outbox event is recorded. Concurrent upserts of the
// same URL serialise on the product row lock.
func (r *ProductRepository) Upsert(ctx context.Context, snap *models.Snapshot) (int64, error) {
	var id int64

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		if id, err = upsertProduct(ctx, tx, snap); err != nil {
			return err
		}
		if err := replaceImages(ctx, tx, id, snap.Images); err != nil {
			return err
		}
		if err := replaceReviews(ctx, tx, id, snap.Reviews); err != nil {
			return err
		}
		return r.recordEvent(ctx, tx, id, snap)
	})
	if err != nil {
		return 0, persistenceError("upsert", err)
	}

	r.logger.Info("snapshot persisted",
		"product_id", id,
		"url", snap.URL,
		"images", len(snap.Images),
		"reviews", len(snap.Reviews))

	return id, nil
}

func upsertProduct(ctx context.Context, tx pgx.Tx, snap *models.Snapshot) (int64, error) {
	query := `
		INSERT INTO products (
			url, name, price, rating, review_count,
			rating_dist_5_star_percent, rating_dist_4_star_percent,
			rating_dist_3_star_percent, rating_dist_2_star_percent,
			rating_dist_1_star_percent, status, warnings, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (url) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			rating_dist_5_star_percent = EXCLUDED.rating_dist_5_star_percent,
			rating_dist_4_star_percent = EXCLUDED.rating_dist_4_star_percent,
			rating_dist_3_star_percent = EXCLUDED.rating_dist_3_star_percent,
			rating_dist_2_star_percent = EXCLUDED.rating_dist_2_star_percent,
			rating_dist_1_star_percent = EXCLUDED.rating_dist_1_star_percent,
			status = EXCLUDED.status,
			warnings = EXCLUDED.warnings,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = NOW()
		RETURNING id`

	warnings := snap.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	var id int64
	err := tx.QueryRow(ctx, query,
		snap.URL, snap.Name, snap.Price, snap.Rating, snap.ReviewCount,
		percent(snap.Distribution, 5), percent(snap.Distribution, 4),
		percent(snap.Distribution, 3), percent(snap.Distribution, 2),
		percent(snap.Distribution, 1), string(snap.Status), warnings, snap.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert product: %w", err)
	}

	return id, nil
}

func replaceImages(ctx context.Context, tx pgx.Tx, productID int64, images []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM product_images WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("failed to delete images: %w", err)
	}
	if len(images) == 0 {
		return nil
	}

	rows := make([][]any, len(images))
	for i, u := range images {
		rows[i] = []any{productID, i + 1, u}
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"product_images"},
		[]string{"product_id", "position", "image_url"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to insert images: %w", err)
	}

	return nil
}

func replaceReviews(ctx context.Context, tx pgx.Tx, productID int64, reviews []models.ReviewRecord) error {
	if _, err := tx.Exec(ctx, `DELETE FROM product_reviews WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("failed to delete reviews: %w", err)
	}
	if len(reviews) == 0 {
		return nil
	}

	rows := make([][]any, len(reviews))
	for i, rv := range reviews {
		rows[i] = []any{productID, rv.Rank, rv.Text}
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"product_reviews"},
		[]string{"product_id", "rank", "review_text"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to insert reviews: %w", err)
	}

	return nil
}

func (r *ProductRepository) recordEvent(ctx context.Context, tx pgx.Tx, productID int64, snap *models.Snapshot) error {
	payload, err := json.Marshal(SnapshotPayload{
		ProductID:   productID,
		URL:         snap.URL,
		Name:        snap.Name,
		Price:       snap.Price,
		Rating:      snap.Rating,
		ReviewCount: snap.ReviewCount,
		Reviews:     len(snap.Reviews),
		Images:      len(snap.Images),
		Status:      snap.Status,
		ScrapedAt:   snap.ScrapedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return r.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
		AggregateType: "product",
		AggregateID:   strconv.FormatInt(productID, 10),
		EventType:     EventSnapshotPersisted,
		Payload:       payload,
		TargetStream:  SnapshotStream,
	})
}

// GetByURL returns the stored snapshot for url, or nil when unknown.
func (r *ProductRepository) GetByURL(ctx context.Context, url string) (*ProductRecord, error) {
	query := `
		SELECT id, url, name, price, rating, review_count,
			rating_dist_5_star_percent, rating_dist_4_star_percent,
			rating_dist_3_star_percent, rating_dist_2_star_percent,
			rating_dist_1_star_percent, status, warnings, scraped_at,
			created_at, updated_at
		FROM products
		WHERE url = $1`

	rec := &ProductRecord{}
	var (
		status string
		dist   [5]*float64
	)
	err := r.db.pool.QueryRow(ctx, query, url).Scan(
		&rec.ID, &rec.URL, &rec.Name, &rec.Price, &rec.Rating, &rec.ReviewCount,
		&dist[0], &dist[1], &dist[2], &dist[3], &dist[4],
		&status, &rec.Warnings, &rec.ScrapedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("get product", fmt.Errorf("failed to get product: %w", err))
	}
	rec.Status = models.Status(status)

	for i, star := range models.Stars {
		if dist[i] == nil {
			continue
		}
		if rec.Distribution == nil {
			rec.Distribution = make(models.Distribution, len(models.Stars))
		}
		rec.Distribution[star] = *dist[i]
	}

	if rec.Images, err = r.images(ctx, rec.ID); err != nil {
		return nil, persistenceError("get product", err)
	}
	if rec.Reviews, err = r.reviews(ctx, rec.ID); err != nil {
		return nil, persistenceError("get product", err)
	}

	return rec, nil
}

func (r *ProductRepository) images(ctx context.Context, productID int64) ([]string, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT image_url FROM product_images WHERE product_id = $1 ORDER BY position`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get images: %w", err)
	}

	images, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan images: %w", err)
	}
	if images == nil {
		images = []string{}
	}
	return images, nil
}

func (r *ProductRepository) reviews(ctx context.Context, productID int64) ([]models.ReviewRecord, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT review_text, rank FROM product_reviews WHERE product_id = $1 ORDER BY rank`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.ReviewRecord{}
	for rows.Next() {
		var rv models.ReviewRecord
		if err := rows.Scan(&rv.Text, &rv.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

// Count returns the number of stored products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, persistenceError("count products", err)
	}
	return count, nil
}

func percent(d models.Distribution, star int) *float64 {
	v, ok := d[star]
	if !ok {
		return nil
	}
	return &v
}
