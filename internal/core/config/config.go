package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	MySQLDSN   string
	RedisAddr  string
	JWTSecret  string
	CORSOrigin string
	Env        string
}

// Load reads the optional .env file and falls back to defaults suitable
// for local development.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:       getEnv("PORT", "3002"),
		MySQLDSN:   getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/pickup?parseTime=true"),
		RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:  getEnv("JWT_SECRET", "your-secret-key"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
		Env:        getEnv("ENV", "development"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
