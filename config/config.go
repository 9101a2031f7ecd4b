package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerHost string
	ServerPort int

	LogLevel string

	SessionName     string
	MaxUsers        int
	MaxSongsPerUser int
	AutoAdvance     bool
	AllowUserSkip   bool
	AllowUserRemove bool

	AutoplayDelayMS      int
	QueueAutoplayDelayMS int

	UserIdleTimeout int

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	JellyfinURL    string
	JellyfinAPIKey string
	JellyfinUserID string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerHost: getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnvAsIntWithDefault("SERVER_PORT", 8080),

		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		SessionName:     getEnvWithDefault("SESSION_NAME", "Karaoke Session"),
		MaxUsers:        getEnvAsIntWithDefault("MAX_USERS", 50),
		MaxSongsPerUser: getEnvAsIntWithDefault("MAX_SONGS_PER_USER", 5),
		AutoAdvance:     getEnvAsBoolWithDefault("AUTO_ADVANCE", true),
		AllowUserSkip:   getEnvAsBoolWithDefault("ALLOW_USER_SKIP", false),
		AllowUserRemove: getEnvAsBoolWithDefault("ALLOW_USER_REMOVE", true),

		AutoplayDelayMS:      getEnvAsIntWithDefault("AUTOPLAY_DELAY_MS", 300),
		QueueAutoplayDelayMS: getEnvAsIntWithDefault("QUEUE_AUTOPLAY_DELAY_MS", 1000),

		UserIdleTimeout: getEnvAsIntWithDefault("USER_IDLE_TIMEOUT", 300),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnvAsIntWithDefault("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvAsIntWithDefault("REDIS_PORT", 6379),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsIntWithDefault("REDIS_DB", 0),

		JellyfinURL:    os.Getenv("JELLYFIN_URL"),
		JellyfinAPIKey: os.Getenv("JELLYFIN_API_KEY"),
		JellyfinUserID: os.Getenv("JELLYFIN_USER_ID"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return errors.New("SERVER_PORT must be between 1 and 65535")
	}

	if c.MaxUsers < 1 {
		return errors.New("MAX_USERS must be at least 1")
	}

	if c.MaxSongsPerUser < 1 {
		return errors.New("MAX_SONGS_PER_USER must be at least 1")
	}

	if c.AutoplayDelayMS < 0 {
		return errors.New("AUTOPLAY_DELAY_MS must not be negative")
	}

	if c.QueueAutoplayDelayMS < 0 {
		return errors.New("QUEUE_AUTOPLAY_DELAY_MS must not be negative")
	}

	if c.JellyfinURL == "" {
		return errors.New("JELLYFIN_URL is required")
	}

	if c.JellyfinAPIKey == "" {
		return errors.New("JELLYFIN_API_KEY is required")
	}

	return nil
}

func (c *Config) AutoplayDelay() time.Duration {
	return time.Duration(c.AutoplayDelayMS) * time.Millisecond
}

func (c *Config) QueueAutoplayDelay() time.Duration {
	return time.Duration(c.QueueAutoplayDelayMS) * time.Millisecond
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.UserIdleTimeout) * time.Second
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBoolWithDefault(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c *Config) GetDBConfig() *DBConfig {
	return &DBConfig{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *Config) GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
