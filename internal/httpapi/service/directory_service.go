package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"diasporahub/internal/httpapi/models"
	"diasporahub/internal/httpapi/repository"

	"github.com/redis/go-redis/v9"
)

// UserDirectory resolves user profiles for the presence surface. Lookups go
// through a Redis read-through cache so the online-users endpoint does not
// hammer the database on every poll; the cache is best-effort and a cold or
// unreachable Redis just falls back to the repository.
type UserDirectory interface {
	Lookup(ctx context.Context, userID int64) (*models.User, error)
	LookupAll(ctx context.Context, userIDs []int64) ([]models.User, error)
}

type userDirectory struct {
	userRepo repository.UserRepository
	cache    *redis.Client // nil disables caching
	cacheTTL time.Duration
	logger   *slog.Logger
}

func NewUserDirectory(userRepo repository.UserRepository, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger) UserDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &userDirectory{
		userRepo: userRepo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("directory:user:%d", userID)
}

func (d *userDirectory) Lookup(ctx context.Context, userID int64) (*models.User, error) {
	if d.cache != nil {
		data, err := d.cache.Get(ctx, cacheKey(userID)).Bytes()
		if err == nil {
			var user models.User
			if err := json.Unmarshal(data, &user); err == nil {
				return &user, nil
			}
			// corrupt entry, fall through to the repository
		} else if err != redis.Nil {
			d.logger.Warn("directory cache read failed", "user_id", userID, "error", err)
		}
	}

	user, err := d.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}

	d.store(ctx, user)
	return user, nil
}

// LookupAll resolves a set of userIDs; ids with no directory entry are
// dropped from the result rather than failing the whole batch.
func (d *userDirectory) LookupAll(ctx context.Context, userIDs []int64) ([]models.User, error) {
	users := make([]models.User, 0, len(userIDs))
	missing := make([]int64, 0)

	for _, id := range userIDs {
		if d.cache == nil {
			missing = append(missing, id)
			continue
		}
		data, err := d.cache.Get(ctx, cacheKey(id)).Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		var user models.User
		if err := json.Unmarshal(data, &user); err != nil {
			missing = append(missing, id)
			continue
		}
		users = append(users, user)
	}

	if len(missing) > 0 {
		fetched, err := d.userRepo.FindByIDs(missing)
		if err != nil {
			return nil, err
		}
		for i := range fetched {
			d.store(ctx, &fetched[i])
		}
		users = append(users, fetched...)
	}

	return users, nil
}

func (d *userDirectory) store(ctx context.Context, user *models.User) {
	if d.cache == nil {
		return
	}
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, cacheKey(user.ID), data, d.cacheTTL).Err(); err != nil {
		d.logger.Warn("directory cache write failed", "user_id", user.ID, "error", err)
	}
}
