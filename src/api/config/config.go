package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	MySQLDSN      string
	RedisURL      string
	JWTSecret     string
	Port          string
	StartingCoins int64
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func Load() Config {
	coins, _ := strconv.ParseInt(getenv("STARTING_COINS", "100"), 10, 64)
	return Config{
		MySQLDSN:      getenv("MYSQL_DSN", "dev:test@tcp(localhost:3306)/indiegamehub"),
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:     getenv("JWT_SECRET", ""),
		Port:          getenv("PORT", "8080"),
		StartingCoins: coins,
	}
}
