package settings

import (
	"context"
	"errors"

	"github.com/example/snapclassify/internal/repository"
)

// SettingRepository is implemented by *repository.SettingRepository.
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// SQLStore keeps settings in the SQL settings table.
type SQLStore struct {
	repo SettingRepository
}

// NewSQLStore wraps a setting repository.
func NewSQLStore(repo SettingRepository) *SQLStore {
	return &SQLStore{repo: repo}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, key, value)
}
