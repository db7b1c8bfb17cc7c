package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "mpc:wallet:"
	signaturePrefix = "mpc:signatures:"
	lockPrefix      = "mpc:lock:"

	// MaxSignatureHistory bounds the per-wallet signing history.
	MaxSignatureHistory = 100
)

// RedisStore Redis存储实现
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建Redis存储实例
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SaveKey 保存密钥记录
func (s *RedisStore) SaveKey(ctx context.Context, record *KeyRecord) error {
	if record == nil || record.UserID == "" {
		return errors.New("key record without user id")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal key record")
	}

	created, err := s.client.SetNX(ctx, keyPrefix+record.UserID, data, 0).Result()
	if err != nil {
		return errors.Wrap(err, "failed to save key record")
	}
	if !created {
		return errors.Wrapf(ErrKeyExists, "user %s", record.UserID)
	}

	return nil
}

// GetKey 获取密钥记录
func (s *RedisStore) GetKey(ctx context.Context, userID string) (*KeyRecord, error) {
	data, err := s.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.Wrapf(ErrKeyNotFound, "user %s", userID)
		}
		return nil, errors.Wrap(err, "failed to get key record")
	}

	var record KeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal key record")
	}

	return &record, nil
}

// DeleteKey 删除密钥记录及签名历史
func (s *RedisStore) DeleteKey(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, keyPrefix+userID, signaturePrefix+userID).Err(); err != nil {
		return errors.Wrap(err, "failed to delete key record")
	}
	return nil
}

// AppendSignature 追加签名记录
func (s *RedisStore) AppendSignature(ctx context.Context, userID string, record *SignatureRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal signature record")
	}

	key := signaturePrefix + userID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, MaxSignatureHistory-1)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to append signature record")
	}

	return nil
}

// ListSignatures 获取签名历史
func (s *RedisStore) ListSignatures(ctx context.Context, userID string, limit int) ([]*SignatureRecord, error) {
	if limit <= 0 || limit > MaxSignatureHistory {
		limit = MaxSignatureHistory
	}

	items, err := s.client.LRange(ctx, signaturePrefix+userID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list signature records")
	}

	records := make([]*SignatureRecord, 0, len(items))
	for _, item := range items {
		var record SignatureRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal signature record")
		}
		records = append(records, &record)
	}

	return records, nil
}

// AcquireLock 获取分布式锁
func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetNX(ctx, lockPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire lock")
	}
	return result, nil
}

// ReleaseLock 释放分布式锁
func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, lockPrefix+key).Err(); err != nil {
		return errors.Wrap(err, "failed to release lock")
	}
	return nil
}
