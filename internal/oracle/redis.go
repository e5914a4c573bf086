package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "perp:price:"

// RedisOracle reads mark prices published by the price ingestor into a
// Redis hash per market: field "price" holds the integer price, field
// "as_of" the unix-second timestamp of the observation.
type RedisOracle struct {
	client *redis.Client
}

func NewRedisOracle(client *redis.Client) *RedisOracle {
	return &RedisOracle{client: client}
}

func (o *RedisOracle) GetPrice(ctx context.Context, marketID string) (Quote, error) {
	key := keyPrefix + marketID
	fields, err := o.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Quote{}, fmt.Errorf("redis read %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Quote{}, fmt.Errorf("%s: %w", marketID, ErrNoQuote)
	}

	var price, asOf int64
	if _, err := fmt.Sscanf(fields["price"], "%d", &price); err != nil {
		return Quote{}, fmt.Errorf("malformed price %q for %s: %w", fields["price"], marketID, err)
	}
	if _, err := fmt.Sscanf(fields["as_of"], "%d", &asOf); err != nil {
		return Quote{}, fmt.Errorf("malformed as_of %q for %s: %w", fields["as_of"], marketID, err)
	}
	return Quote{Price: price, AsOf: time.Unix(asOf, 0)}, nil
}

// SetPrice publishes a quote; used by the keeper's price ingestion loop.
func (o *RedisOracle) SetPrice(ctx context.Context, marketID string, q Quote) error {
	key := keyPrefix + marketID
	err := o.client.HSet(ctx, key,
		"price", q.Price,
		"as_of", q.AsOf.Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis write %s: %w", key, err)
	}
	return nil
}
