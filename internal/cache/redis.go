package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const stockTTL = 30 * time.Second

type RedisClient struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisClient(addr, password string, db int, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connected successfully", zap.String("addr", addr))

	return &RedisClient{
		client: rdb,
		log:    log,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func stockKey(tenantID, stockRecordID uuid.UUID) string {
	return fmt.Sprintf("stock:%s:%s", tenantID, stockRecordID)
}

// Кэш снапшотов остатков. Запись живёт недолго: источник правды — БД.
func (r *RedisClient) GetStock(ctx context.Context, tenantID, stockRecordID uuid.UUID) (*service.StockView, bool, error) {
	data, err := r.client.Get(ctx, stockKey(tenantID, stockRecordID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var view service.StockView
	if err := json.Unmarshal(data, &view); err != nil {
		// битую запись выкидываем, читатель сходит в БД
		_ = r.client.Del(ctx, stockKey(tenantID, stockRecordID)).Err()
		return nil, false, nil
	}
	return &view, true, nil
}

func (r *RedisClient) SetStock(ctx context.Context, tenantID uuid.UUID, view *service.StockView) error {
	if view == nil || view.Record == nil {
		return nil
	}
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, stockKey(tenantID, view.Record.ID), data, stockTTL).Err()
}

func (r *RedisClient) InvalidateStock(ctx context.Context, tenantID, stockRecordID uuid.UUID) error {
	return r.client.Del(ctx, stockKey(tenantID, stockRecordID)).Err()
}
