// Package cache serves the hot read paths (ballots, published results)
// from Redis. The cache is strictly an accelerator: every entry can be
// rebuilt from Postgres, and a miss or a Redis outage degrades to a store
// read, never to an error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
)

// ballotTTL bounds staleness if an invalidation is missed. Ballots are
// frozen once voting opens, so a generous TTL is safe.
const ballotTTL = 10 * time.Minute

// resultsTTL covers published results, which are immutable.
const resultsTTL = time.Hour

type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func ballotKey(electionID id.ElectionID) string {
	return "comitia:ballot:" + electionID.String()
}

func resultsKey(electionID id.ElectionID) string {
	return "comitia:results:" + electionID.String()
}

// GetBallot returns the cached ballot, sentinel.ErrNotFound on a miss.
func (c *Cache) GetBallot(ctx context.Context, electionID id.ElectionID) (*models.Ballot, error) {
	raw, err := c.rdb.Get(ctx, ballotKey(electionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ballot cache get: %w", err)
	}
	var ballot models.Ballot
	if err := json.Unmarshal(raw, &ballot); err != nil {
		return nil, fmt.Errorf("ballot cache decode: %w", err)
	}
	return &ballot, nil
}

func (c *Cache) SetBallot(ctx context.Context, ballot *models.Ballot) error {
	raw, err := json.Marshal(ballot)
	if err != nil {
		return fmt.Errorf("ballot cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, ballotKey(ballot.ElectionID), raw, ballotTTL).Err(); err != nil {
		return fmt.Errorf("ballot cache set: %w", err)
	}
	return nil
}

// InvalidateBallot drops the cached ballot after a candidacy change.
func (c *Cache) InvalidateBallot(ctx context.Context, electionID id.ElectionID) error {
	if err := c.rdb.Del(ctx, ballotKey(electionID)).Err(); err != nil {
		return fmt.Errorf("ballot cache invalidate: %w", err)
	}
	return nil
}

// GetResults returns cached published results, sentinel.ErrNotFound on a
// miss.
func (c *Cache) GetResults(ctx context.Context, electionID id.ElectionID) ([]models.Result, error) {
	raw, err := c.rdb.Get(ctx, resultsKey(electionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("results cache get: %w", err)
	}
	var results []models.Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("results cache decode: %w", err)
	}
	return results, nil
}

func (c *Cache) SetResults(ctx context.Context, electionID id.ElectionID, results []models.Result) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("results cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, resultsKey(electionID), raw, resultsTTL).Err(); err != nil {
		return fmt.Errorf("results cache set: %w", err)
	}
	return nil
}
