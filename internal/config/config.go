package config

import (
	"strings"

	"paircall-backend/pkg/env"
)

// Config holds the environment-driven settings for the match service
type Config struct {
	Env  string
	Port int

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	CassandraHosts    []string
	CassandraKeyspace string

	JWTSecret string

	InstanceID string
}

// Load reads configuration from the environment (or Docker secrets)
func Load() *Config {
	return &Config{
		Env:  env.GetString("ENV", "development"),
		Port: env.GetInt("PORT", 8084),

		DBHost:     env.GetString("DB_HOST", "localhost"),
		DBPort:     env.GetInt("DB_PORT", 26257),
		DBUser:     env.GetString("DB_USER", "root"),
		DBPassword: env.GetStringFromFile("DB_PASSWORD", ""),
		DBName:     env.GetString("DB_NAME", "paircall"),
		DBSSLMode:  env.GetString("DB_SSLMODE", "disable"),

		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),

		CassandraHosts:    strings.Split(env.GetString("CASSANDRA_HOSTS", "localhost"), ","),
		CassandraKeyspace: env.GetString("CASSANDRA_KEYSPACE", "paircall"),

		JWTSecret: env.GetStringFromFile("JWT_SECRET", ""),

		InstanceID: instanceID(),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// instanceID identifies this process on the broadcast channel. The relay
// uses it to tell its own publishes from those of other instances.
func instanceID() string {
	if id := env.GetString("FLY_MACHINE_ID", ""); id != "" {
		return id
	}
	if host := env.GetString("HOSTNAME", ""); host != "" {
		return host
	}
	return "unknown"
}
