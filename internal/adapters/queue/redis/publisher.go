package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"picpic.transcode/internal/core/domain"
)

const (
	ProgressChannel = "transcode:progress"
	AttemptChannel  = "transcode:attempts"
)

// Publisher broadcasts progress snapshots and attempt results over Redis
// pub/sub.
type Publisher struct {
	client *redis.Client
}

// NewClient parses a redis:// URL into a client shared by the publisher and
// the failure ledger.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishProgress(ctx context.Context, entries []domain.ProgressEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, ProgressChannel, data).Err()
}

func (p *Publisher) PublishAttempt(ctx context.Context, attempt *domain.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, AttemptChannel, data).Err()
}
