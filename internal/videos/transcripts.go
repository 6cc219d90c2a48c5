package videos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-academy/backend/internal/models"
)

// TranscriptRepository persists per-language transcripts.
type TranscriptRepository struct {
	pool *pgxpool.Pool
}

// NewTranscriptRepository creates a transcript repository.
func NewTranscriptRepository(pool *pgxpool.Pool) *TranscriptRepository {
	return &TranscriptRepository{pool: pool}
}

// Upsert inserts or replaces the transcript for (video, language), so
// resets and retries never produce duplicate rows.
func (r *TranscriptRepository) Upsert(ctx context.Context, t *models.Transcript) error {
	const q = `INSERT INTO video_transcripts (id, video_id, language, text, confidence, provider)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		ON CONFLICT (video_id, language)
		DO UPDATE SET text = EXCLUDED.text, confidence = EXCLUDED.confidence, provider = EXCLUDED.provider, created_at = NOW()
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, t.VideoID, t.Language, t.Text, t.Confidence, t.Provider).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// ListByVideo returns all transcripts for a video ordered by language.
func (r *TranscriptRepository) ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.Transcript, error) {
	const q = `SELECT id, video_id, language, text, confidence, COALESCE(provider,''), created_at
		FROM video_transcripts WHERE video_id = $1 ORDER BY language`
	rows, err := r.pool.Query(ctx, q, videoID)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()
	var list []models.Transcript
	for rows.Next() {
		var t models.Transcript
		if err := rows.Scan(&t.ID, &t.VideoID, &t.Language, &t.Text, &t.Confidence, &t.Provider, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Best returns the highest-confidence transcript for a video, or nil.
func (r *TranscriptRepository) Best(ctx context.Context, videoID uuid.UUID) (*models.Transcript, error) {
	const q = `SELECT id, video_id, language, text, confidence, COALESCE(provider,''), created_at
		FROM video_transcripts WHERE video_id = $1 ORDER BY confidence DESC LIMIT 1`
	var t models.Transcript
	err := r.pool.QueryRow(ctx, q, videoID).
		Scan(&t.ID, &t.VideoID, &t.Language, &t.Text, &t.Confidence, &t.Provider, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("best transcript: %w", err)
	}
	return &t, nil
}
