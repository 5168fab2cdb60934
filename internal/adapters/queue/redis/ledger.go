package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"picpic.transcode/internal/core/domain"
)

const (
	failuresKey        = "transcode:failures"
	failuresMetaPrefix = "transcode:failures:meta:"
)

// FailureLedger keeps the most recent failure of every source file whose
// last attempt did not succeed, newest first. Nothing reads it back into the
// scheduler: failed files are still retried every cycle.
type FailureLedger struct {
	client *redis.Client
}

func NewFailureLedger(client *redis.Client) *FailureLedger {
	return &FailureLedger{client: client}
}

func metaKey(sourcePath string) string {
	sum := sha1.Sum([]byte(sourcePath))
	return failuresMetaPrefix + hex.EncodeToString(sum[:])
}

// RecordFailure adds or refreshes the ledger entry for the attempt's source.
func (l *FailureLedger) RecordFailure(ctx context.Context, attempt *domain.Attempt) error {
	record, err := l.get(ctx, attempt.SourcePath)
	if err != nil {
		return err
	}
	if record == nil {
		record = &domain.FailureRecord{SourcePath: attempt.SourcePath}
	}
	record.Label = attempt.Label
	record.Reason = attempt.Error
	record.Failures++
	record.LastAttempt = attempt.ID
	record.LastFailure = attempt.FinishedAt

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, failuresKey, redis.Z{
		Score:  float64(attempt.FinishedAt.UnixMilli()),
		Member: attempt.SourcePath,
	})
	pipe.Set(ctx, metaKey(attempt.SourcePath), data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// Clear drops the entry for sourcePath, if any.
func (l *FailureLedger) Clear(ctx context.Context, sourcePath string) error {
	pipe := l.client.TxPipeline()
	pipe.ZRem(ctx, failuresKey, sourcePath)
	pipe.Del(ctx, metaKey(sourcePath))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear failure: %w", err)
	}
	return nil
}

func (l *FailureLedger) get(ctx context.Context, sourcePath string) (*domain.FailureRecord, error) {
	data, err := l.client.Get(ctx, metaKey(sourcePath)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure record: %w", err)
	}

	var record domain.FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// ListFailures returns ledger entries, most recent failure first.
func (l *FailureLedger) ListFailures(ctx context.Context, offset, limit int64) ([]*domain.FailureRecord, error) {
	paths, err := l.client.ZRevRange(ctx, failuresKey, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}

	records := make([]*domain.FailureRecord, 0, len(paths))
	for _, p := range paths {
		record, err := l.get(ctx, p)
		if err != nil || record == nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// CountFailures returns the number of files currently in the ledger.
func (l *FailureLedger) CountFailures(ctx context.Context) (int64, error) {
	count, err := l.client.ZCard(ctx, failuresKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return count, nil
}
