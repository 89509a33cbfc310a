package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DataDir         string
	UploadDir       string
	SessionSecret   string
	SessionMaxAge   int
	DefaultAdmin    string
	DefaultPassword string
	MaxUploadBytes  int64
}

func Load() *Config {
	// Optional .env file; real environment variables win
	godotenv.Load()

	cfg := &Config{
		Port:            getEnvInt("PETTYCASH_PORT", 8080),
		DataDir:         getEnvString("PETTYCASH_DATA_DIR", "./data"),
		UploadDir:       getEnvString("PETTYCASH_UPLOAD_DIR", "./uploads"),
		SessionSecret:   getEnvString("PETTYCASH_SESSION_SECRET", "change-me-in-production-32bytes!"),
		SessionMaxAge:   getEnvInt("PETTYCASH_SESSION_MAX_AGE", 86400), // 24 hours
		DefaultAdmin:    getEnvString("PETTYCASH_DEFAULT_ADMIN", "admin"),
		DefaultPassword: getEnvString("PETTYCASH_DEFAULT_PASSWORD", "admin123"),
		MaxUploadBytes:  getEnvInt64("PETTYCASH_MAX_UPLOAD_BYTES", 5*1024*1024),
	}

	// Ensure directories exist
	os.MkdirAll(cfg.DataDir, 0755)
	os.MkdirAll(cfg.UploadDir, 0755)

	return cfg
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
