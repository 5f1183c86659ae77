// Package registry keeps the broadcast distribution list and the administrative ban list in Redis.
package registry

import (
	"context"
	"log/slog"
	"strconv"

	redis "github.com/redis/go-redis/v9"
)

const (
	knownUsersKey  = "users:known"
	bannedUsersKey = "users:banned"
)

// Registry is the append-only set of every user id the bot has seen.
// It is the distribution list for broadcasts; ids are never removed, not even on ban.
type Registry struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRegistry constructs a Redis-backed user registry.
func NewRegistry(client *redis.Client, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		client: client,
		log:    log,
	}
}

// Add records a user id in the registry.
func (r *Registry) Add(ctx context.Context, userID int64) error {
	if err := r.client.SAdd(ctx, knownUsersKey, userID).Err(); err != nil {
		r.log.Error("failed to register user", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	return nil
}

// All returns every known user id.
func (r *Registry) All(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, knownUsersKey).Result()
	if err != nil {
		r.log.Error("failed to list registered users", slog.Any("error", err))
		return nil, err
	}

	return parseIDs(members), nil
}

// Count returns the registry size.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	return r.client.SCard(ctx, knownUsersKey).Result()
}

// BanList is the administrative override set of banned user ids,
// kept separate from per-record ban flags so users can be banned before first contact.
type BanList struct {
	client *redis.Client
	log    *slog.Logger
}

// NewBanList constructs a Redis-backed ban list.
func NewBanList(client *redis.Client, log *slog.Logger) *BanList {
	if log == nil {
		log = slog.Default()
	}

	return &BanList{
		client: client,
		log:    log,
	}
}

// Add bans a user id.
func (b *BanList) Add(ctx context.Context, userID int64) error {
	if err := b.client.SAdd(ctx, bannedUsersKey, userID).Err(); err != nil {
		b.log.Error("failed to ban user", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	return nil
}

// Remove lifts the ban for a user id. Removing an absent id is not an error.
func (b *BanList) Remove(ctx context.Context, userID int64) error {
	if err := b.client.SRem(ctx, bannedUsersKey, userID).Err(); err != nil {
		b.log.Error("failed to unban user", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	return nil
}

// Contains reports whether the user id is banned.
func (b *BanList) Contains(ctx context.Context, userID int64) (bool, error) {
	banned, err := b.client.SIsMember(ctx, bannedUsersKey, userID).Result()
	if err != nil {
		b.log.Error("failed to check ban list", slog.Int64("user_id", userID), slog.Any("error", err))
		return false, err
	}

	return banned, nil
}

// Count returns the ban list size.
func (b *BanList) Count(ctx context.Context) (int64, error) {
	return b.client.SCard(ctx, bannedUsersKey).Result()
}

func parseIDs(members []string) []int64 {
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	return ids
}
