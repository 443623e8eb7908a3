package data

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codePrefix   = "verify:"
	codeTTL      = 10 * time.Minute
	streamEvents = "indiegamehub.events"
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// SetVerificationCode stores a registration code for an email address with a
// bounded lifetime. Codes expire on their own; nothing sweeps them.
func SetVerificationCode(ctx context.Context, rdb *redis.Client, email, code string) error {
	return rdb.Set(ctx, codePrefix+email, code, codeTTL).Err()
}

// GetAndDelVerificationCode consumes the code for an email address.
func GetAndDelVerificationCode(ctx context.Context, rdb *redis.Client, email string) (string, error) {
	return rdb.GetDel(ctx, codePrefix+email).Result()
}

// PublishEvent pushes a platform event onto the notification stream.
func PublishEvent(ctx context.Context, rdb *redis.Client, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamEvents,
		Values: payload,
	}).Result()
	return err
}

// EventStream is the stream name consumed by the notifier bot.
func EventStream() string { return streamEvents }
