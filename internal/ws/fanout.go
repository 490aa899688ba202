package ws

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"auctionlane/internal/notify/redisnotify"
)

// SubscribeAuctionEvents fans out events published by any service instance
// to this process's hub. One pattern subscription covers every auction room.
func SubscribeAuctionEvents(ctx context.Context, rdb *redis.Client, hub *Hub) {
	pubsub := rdb.PSubscribe(ctx, redisnotify.Channel("*"))
	defer pubsub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			// channel format: "auction:<auctionID>:events"
			parts := strings.Split(m.Channel, ":")
			if len(parts) != 3 {
				continue
			}
			hub.Broadcast(parts[1], []byte(m.Payload))
		}
	}
}
