package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"interactive-video-service/internal/domain"
)

// VideoLoader loads video descriptors stored as JSONB.
type VideoLoader struct {
	pool *pgxpool.Pool
}

func NewVideoLoader(pool *pgxpool.Pool) *VideoLoader {
	return &VideoLoader{pool: pool}
}

func (l *VideoLoader) LoadVideo(ctx context.Context, videoID string) (domain.Video, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM videos WHERE id=$1`, videoID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Video{}, domain.ErrVideoNotFound
	}
	if err != nil {
		return domain.Video{}, fmt.Errorf("load video: %w", err)
	}
	var video domain.Video
	if err := json.Unmarshal(raw, &video); err != nil {
		return domain.Video{}, fmt.Errorf("unmarshal video: %w", err)
	}
	if err := domain.ParseElementActions(video.Elements); err != nil {
		return domain.Video{}, fmt.Errorf("video %s: %w", videoID, err)
	}
	return video, nil
}
