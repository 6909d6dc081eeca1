package config

import "time"

// GraphmanConfig holds runtime configuration for the graphman API service.
type GraphmanConfig struct {
	Environment         string
	Addr                string
	DatabaseURL         string
	MirrorDatabaseURL   string
	MigrationsDir       string
	RestartDelayDefault time.Duration
	EventsRedisAddr     string
	EventsRedisPass     string
	EventsRedisDB       int
	EventsRedisChannel  string
	ExecutionListLimit  int
	ShutdownGrace       time.Duration
}

// LoadGraphmanConfig constructs a GraphmanConfig from environment variables.
// MIRROR_DATABASE_URL may point at a read replica; when unset the primary is
// used as a primary-only mirror.
func LoadGraphmanConfig() GraphmanConfig {
	return GraphmanConfig{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                GetString("GRAPHMAN_ADDR", ":8050"),
		DatabaseURL:         GetString("DATABASE_URL", "postgres://graphman:graphman@db:5432/graphman?sslmode=disable"),
		MirrorDatabaseURL:   GetString("MIRROR_DATABASE_URL", ""),
		MigrationsDir:       GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		RestartDelayDefault: GetDuration("RESTART_DELAY_DEFAULT", 20*time.Second),
		EventsRedisAddr:     GetString("EVENTS_REDIS_ADDR", ""),
		EventsRedisPass:     GetString("EVENTS_REDIS_PASS", ""),
		EventsRedisDB:       GetInt("EVENTS_REDIS_DB", 0),
		EventsRedisChannel:  GetString("EVENTS_REDIS_CHANNEL", "graphman:executions"),
		ExecutionListLimit:  GetInt("EXECUTION_LIST_LIMIT", 50),
		ShutdownGrace:       GetDuration("SHUTDOWN_GRACE", 10*time.Second),
	}
}
