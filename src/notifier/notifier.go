// File: src/notifier/notifier.go
//
// Relays platform events (completed proposals, pledges, donations) from
// the Redis event stream to a Discord channel.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/data"
)

type Notifier struct {
	session   *discordgo.Session
	rdb       *redis.Client
	channelID string
}

func NewNotifier(token, channelID string, rdb *redis.Client) (*Notifier, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &Notifier{session: dg, rdb: rdb, channelID: channelID}, nil
}

func (n *Notifier) Start() error {
	return n.session.Open()
}

func (n *Notifier) Stop() {
	_ = n.session.Close()
}

func (n *Notifier) listen(ctx context.Context) {
	lastID := "$"

	for {
		select {
		case <-ctx.Done():
			return
		default:
			streams, err := n.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{data.EventStream(), lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					log.Printf("read stream: %v", err)
				}
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					if line := formatEvent(msg.Values); line != "" {
						if _, err := n.session.ChannelMessageSend(n.channelID, line); err != nil {
							log.Printf("post to discord: %v", err)
						}
					}
					lastID = msg.ID
				}
			}
		}
	}
}

func formatEvent(values map[string]interface{}) string {
	event, _ := values["event"].(string)
	switch event {
	case "proposal_completed":
		title, _ := values["title"].(string)
		return fmt.Sprintf("Proposal completed: %s", title)
	case "bounty_pledged":
		amount, _ := values["amount"].(string)
		return fmt.Sprintf("New bounty pledged: %s coins", amount)
	case "donation":
		amount, _ := values["amount"].(string)
		return fmt.Sprintf("New donation: %s coins", amount)
	default:
		return ""
	}
}

func main() {
	token := os.Getenv("DISCORD_TOKEN")
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if token == "" || channelID == "" {
		log.Fatalf("DISCORD_TOKEN and DISCORD_CHANNEL_ID are required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	rdb := data.MustRedis(redisURL)

	bot, err := NewNotifier(token, channelID, rdb)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}
	if err := bot.Start(); err != nil {
		log.Fatalf("discord open: %v", err)
	}
	defer bot.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go bot.listen(ctx)

	log.Printf("notifier running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}
