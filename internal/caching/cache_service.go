package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"medkit/internal/logger"
	"medkit/internal/models"
)

const keyPrefix = "medkit"

type CacheService interface {
	// Discard-rate windows, keyed by the window's newest month and length.
	// A miss returns nil, nil.
	GetDiscardRates(ctx context.Context, anchorMonth string, months int) ([]models.MonthlyDiscardRate, error)
	SetDiscardRates(ctx context.Context, anchorMonth string, months int, rates []models.MonthlyDiscardRate, ttl time.Duration) error
	InvalidateDiscardRates(ctx context.Context) error

	// Distributor directory caching
	GetDistributor(ctx context.Context, id string) (*models.Distributor, error)
	SetDistributor(ctx context.Context, distributor *models.Distributor, ttl time.Duration) error
	DeleteDistributor(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client redis.UniversalClient
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port as well as host:port
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn(context.Background(), "redis ping failed on initialization",
			logger.String("addr", parsedAddr),
			logger.ErrorF(err),
		)
	}

	return &redisCacheService{client: client}
}

func NewCacheServiceFromClient(client redis.UniversalClient) CacheService {
	return &redisCacheService{client: client}
}

func DiscardRateKey(anchorMonth string, months int) string {
	return fmt.Sprintf("%s:discard_rate:%s:%d", keyPrefix, anchorMonth, months)
}

func DistributorKey(id string) string {
	return fmt.Sprintf("%s:distributor:%s", keyPrefix, id)
}

func (r *redisCacheService) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (r *redisCacheService) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) GetDiscardRates(ctx context.Context, anchorMonth string, months int) ([]models.MonthlyDiscardRate, error) {
	var rates []models.MonthlyDiscardRate
	ok, err := r.getJSON(ctx, DiscardRateKey(anchorMonth, months), &rates)
	if err != nil || !ok {
		return nil, err
	}
	return rates, nil
}

func (r *redisCacheService) SetDiscardRates(ctx context.Context, anchorMonth string, months int, rates []models.MonthlyDiscardRate, ttl time.Duration) error {
	return r.setJSON(ctx, DiscardRateKey(anchorMonth, months), rates, ttl)
}

func (r *redisCacheService) InvalidateDiscardRates(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+":discard_rate:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *redisCacheService) GetDistributor(ctx context.Context, id string) (*models.Distributor, error) {
	var d models.Distributor
	ok, err := r.getJSON(ctx, DistributorKey(id), &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

func (r *redisCacheService) SetDistributor(ctx context.Context, distributor *models.Distributor, ttl time.Duration) error {
	return r.setJSON(ctx, DistributorKey(distributor.ID), distributor, ttl)
}

func (r *redisCacheService) DeleteDistributor(ctx context.Context, id string) error {
	return r.client.Del(ctx, DistributorKey(id)).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
