package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBotConfig_IsAdmin(t *testing.T) {
	cfg := BotConfig{AdminIDs: []int64{1, 7}}

	assert.True(t, cfg.IsAdmin(1))
	assert.True(t, cfg.IsAdmin(7))
	assert.False(t, cfg.IsAdmin(42))
}

func TestDBConfig_DSN(t *testing.T) {
	cfg := DBConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "clearcut",
		Password: "secret",
		Name:     "clearcut",
	}

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=clearcut")
	assert.Contains(t, dsn, "sslmode=disable")

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
