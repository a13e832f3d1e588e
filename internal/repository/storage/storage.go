package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryan4259/r2-image-compressor/internal/entities"
)

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

// InsertImage records one completed upload and returns it with the
// database-assigned fields filled in.
func (s *dbStorage) InsertImage(ctx context.Context, img entities.Image) (entities.Image, error) {
	const query = `
        INSERT INTO images (owner_id, base_name, full_key, thumb_key, width, height, size_bytes)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at
    `

	err := s.dbpool.QueryRow(ctx, query,
		img.OwnerID, img.BaseName, img.FullKey, img.ThumbKey,
		img.Width, img.Height, img.SizeBytes,
	).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return entities.Image{}, fmt.Errorf("insert image: %w", err)
	}
	return img, nil
}

// ListImages returns recent uploads, optionally narrowed to one owner.
func (s *dbStorage) ListImages(ctx context.Context, ownerID *string, limit int) ([]entities.Image, error) {
	const query = `
        SELECT id, owner_id, base_name, full_key, thumb_key, width, height, size_bytes, created_at
        FROM images
        WHERE $1::text IS NULL OR owner_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `

	rows, err := s.dbpool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []entities.Image
	for rows.Next() {
		var img entities.Image
		if err := rows.Scan(
			&img.ID, &img.OwnerID, &img.BaseName, &img.FullKey, &img.ThumbKey,
			&img.Width, &img.Height, &img.SizeBytes, &img.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
