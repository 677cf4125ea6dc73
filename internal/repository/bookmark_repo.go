package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BookmarkRepository - интерфейс для работы с закладками тендеров.
type BookmarkRepository interface {
	Toggle(ctx context.Context, userID, tenderID string) (bool, error)
	IsSaved(ctx context.Context, userID, tenderID string) (bool, error)
	SavedBy(ctx context.Context, tenderID string) ([]string, error)
	SavedCount(ctx context.Context, tenderID string) (int64, error)
}

// RedisBookmarkRepository хранит закладки в Redis-множествах.
// Закладки - не бизнес-критичное состояние: согласованность между
// зеркальными множествами намеренно last-write-wins, без транзакций.
type RedisBookmarkRepository struct {
	client *redis.Client
}

// NewRedisBookmarkRepository создаёт новый экземпляр RedisBookmarkRepository.
func NewRedisBookmarkRepository(addr, password string, db int) *RedisBookmarkRepository {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisBookmarkRepository{client: rdb}
}

// NewRedisBookmarkRepositoryFromClient оборачивает готовый клиент (для тестов).
func NewRedisBookmarkRepositoryFromClient(client *redis.Client) *RedisBookmarkRepository {
	return &RedisBookmarkRepository{client: client}
}

func userKey(userID string) string {
	return fmt.Sprintf("saved:user:%s", userID)
}

func tenderKey(tenderID string) string {
	return fmt.Sprintf("saved:tender:%s", tenderID)
}

// Toggle переключает закладку и возвращает итоговое состояние:
// true, если тендер теперь сохранён. Повторный вызов возвращает всё обратно.
func (r *RedisBookmarkRepository) Toggle(ctx context.Context, userID, tenderID string) (bool, error) {
	added, err := r.client.SAdd(ctx, userKey(userID), tenderID).Result()
	if err != nil {
		return false, err
	}
	if added == 1 {
		if err := r.client.SAdd(ctx, tenderKey(tenderID), userID).Err(); err != nil {
			return false, err
		}
		return true, nil
	}

	// Тендер уже был в закладках, снимаем отметку.
	if err := r.client.SRem(ctx, userKey(userID), tenderID).Err(); err != nil {
		return false, err
	}
	if err := r.client.SRem(ctx, tenderKey(tenderID), userID).Err(); err != nil {
		return false, err
	}
	return false, nil
}

// IsSaved сообщает, сохранён ли тендер пользователем.
func (r *RedisBookmarkRepository) IsSaved(ctx context.Context, userID, tenderID string) (bool, error) {
	return r.client.SIsMember(ctx, userKey(userID), tenderID).Result()
}

// SavedBy возвращает пользователей, сохранивших тендер.
func (r *RedisBookmarkRepository) SavedBy(ctx context.Context, tenderID string) ([]string, error) {
	return r.client.SMembers(ctx, tenderKey(tenderID)).Result()
}

// SavedCount возвращает число закладок на тендер.
func (r *RedisBookmarkRepository) SavedCount(ctx context.Context, tenderID string) (int64, error) {
	return r.client.SCard(ctx, tenderKey(tenderID)).Result()
}
