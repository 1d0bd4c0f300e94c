package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tunespace/server/internal/domain"
	"github.com/tunespace/server/internal/repository/session"
)

func (r repo) getSnapshotKey(sessionId string) string {
	return "session:" + sessionId + ":snapshot"
}

func (r repo) SetSnapshot(ctx context.Context, params *session.SetSnapshotParams) error {
	data, err := json.Marshal(params.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	snapshotKey := r.getSnapshotKey(params.SessionId)
	if err := r.rc.Set(ctx, snapshotKey, data, r.snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	return nil
}

func (r repo) GetSnapshot(ctx context.Context, sessionId string) (domain.Snapshot, error) {
	data, err := r.rc.Get(ctx, r.getSnapshotKey(sessionId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, session.ErrSnapshotNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, nil
}

func (r repo) RemoveSnapshot(ctx context.Context, sessionId string) error {
	res, err := r.rc.Del(ctx, r.getSnapshotKey(sessionId)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}

	if res == 0 {
		return session.ErrSnapshotNotFound
	}

	return nil
}
