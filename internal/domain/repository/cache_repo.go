package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с кешем: счётчики показов
// вопросов и записи о задачах генерации с TTL
type CacheRepository interface {
	Get(key string) (string, error)
	Increment(key string) (int64, error)
	SetJSON(key string, value interface{}, expiration time.Duration) error
	GetJSON(key string, dest interface{}) error
}
