package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"exam-engine/internal/cache"
	"exam-engine/internal/domain"
	"exam-engine/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultExamTreeTTL = 10 * time.Minute

// ExamTreeReader loads full exam trees. Returned trees are shared between
// callers and must not be modified.
type ExamTreeReader interface {
	GetExamTree(ctx context.Context, examID int64) (*domain.Exam, error)
	Invalidate(ctx context.Context, examID int64)
}

type examTreeReader struct {
	repo  domain.ExamRepository
	cache domain.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewExamTreeReader reads through cache when it is not nil.
func NewExamTreeReader(repo domain.ExamRepository, cache domain.Cache, ttl time.Duration) ExamTreeReader {
	if ttl <= 0 {
		ttl = defaultExamTreeTTL
	}
	return &examTreeReader{repo: repo, cache: cache, ttl: ttl}
}

func (r *examTreeReader) GetExamTree(ctx context.Context, examID int64) (*domain.Exam, error) {
	key := cache.ExamTreeKey(examID)

	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			var exam domain.Exam
			errDecode := json.Unmarshal([]byte(raw), &exam)
			if errDecode == nil {
				return &exam, nil
			}
			logger.Get().Warn("Discarding undecodable cached exam tree",
				zap.Int64("examID", examID), zap.Error(errDecode))
		case errors.Is(err, domain.ErrCacheMiss):
			logger.Get().Debug("Exam tree cache miss", zap.Int64("examID", examID))
		default:
			logger.Get().Warn("Exam tree cache read failed, falling back to database",
				zap.Int64("examID", examID), zap.Error(err))
		}
	}

	res, err, _ := r.group.Do(key, func() (interface{}, error) {
		exam, err := r.repo.GetExamTree(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("failed to load exam tree: %w", err)
		}
		if exam == nil || r.cache == nil {
			return exam, nil
		}

		data, err := json.Marshal(exam)
		if err != nil {
			logger.Get().Warn("Failed to encode exam tree for caching", zap.Int64("examID", examID), zap.Error(err))
			return exam, nil
		}
		if err := r.cache.Set(ctx, key, string(data), r.ttl); err != nil {
			logger.Get().Warn("Failed to cache exam tree", zap.Int64("examID", examID), zap.Error(err))
		}
		return exam, nil
	})
	if err != nil {
		return nil, err
	}

	exam, _ := res.(*domain.Exam)
	return exam, nil
}

// Invalidate drops the cached tree. Failures are only logged; the entry
// expires with its TTL anyway.
func (r *examTreeReader) Invalidate(ctx context.Context, examID int64) {
	if r.cache == nil {
		return
	}
	r.group.Forget(cache.ExamTreeKey(examID))
	if err := r.cache.Delete(ctx, cache.ExamTreeKey(examID)); err != nil {
		logger.Get().Warn("Failed to invalidate exam tree cache", zap.Int64("examID", examID), zap.Error(err))
	}
}
