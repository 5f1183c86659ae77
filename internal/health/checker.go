// Package health aggregates readiness checks for the bot's dependencies.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/pkg/redis"
)

// Check probes a single dependency.
type Check func(ctx context.Context) error

// Status is the serialized health report.
type Status struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

// Checker runs named dependency checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker returns an empty Checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds a named check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all checks with a per-check timeout and aggregates the result.
func (c *Checker) Run(ctx context.Context) Status {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := Status{Healthy: true, Checks: make(map[string]string, len(checks))}

	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := check(checkCtx)
		cancel()

		if err != nil {
			status.Healthy = false
			status.Checks[name] = err.Error()
			continue
		}
		status.Checks[name] = "ok"
	}

	return status
}

// Handler serves the aggregated health report as JSON.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	}
}

// DBCheck probes the PostgreSQL connection.
func DBCheck(db *sql.DB) Check {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// RedisCheck probes the Redis connection.
func RedisCheck(client *redis.Client) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// TelegramCheck verifies the Bot API is reachable with the configured token.
func TelegramCheck(tb *telebot.Bot) Check {
	return func(ctx context.Context) error {
		_, err := tb.Raw("getMe", nil)
		return err
	}
}
