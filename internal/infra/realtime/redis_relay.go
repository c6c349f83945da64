package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "rentalhub:room:"

type relayEnvelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay shares room broadcasts between gateway instances over Redis
// pub/sub. Frames published by this instance are ignored on receipt.
type RedisRelay struct {
	Client     *redis.Client
	InstanceID string
	Logger     *slog.Logger
}

func (r *RedisRelay) Publish(ctx context.Context, room string, frame []byte, except string) error {
	data, err := json.Marshal(relayEnvelope{Origin: r.InstanceID, Room: room, Except: except, Frame: frame})
	if err != nil {
		return fmt.Errorf("relay: encode: %w", err)
	}
	return r.Client.Publish(ctx, relayChannelPrefix+room, data).Err()
}

// Run subscribes until ctx is done, reconnecting with capped backoff.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := r.consume(ctx, hub, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return
		}
		if r.Logger != nil {
			r.Logger.Warn("relay subscriber stopped", "err", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context, hub *Hub, healthy func()) error {
	pubsub := r.Client.PSubscribe(ctx, relayChannelPrefix+"*")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if r.Logger != nil {
		r.Logger.Info("relay subscriber started", "pattern", relayChannelPrefix+"*")
	}
	healthy()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		r.dispatch(hub, msg.Channel, []byte(msg.Payload))
	}
}

func (r *RedisRelay) dispatch(hub *Hub, channel string, payload []byte) bool {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if r.Logger != nil {
			r.Logger.Warn("relay frame decode failed", "channel", channel, "err", err)
		}
		return false
	}
	if env.Origin == r.InstanceID {
		return false
	}
	room := env.Room
	if room == "" {
		room = strings.TrimPrefix(channel, relayChannelPrefix)
	}
	if room == "" || len(env.Frame) == 0 {
		return false
	}
	hub.Deliver(room, env.Frame, env.Except)
	return true
}

var errNoRedis = errors.New("relay: redis client not configured")

// Ping verifies connectivity before the relay is installed on the hub.
func (r *RedisRelay) Ping(ctx context.Context) error {
	if r.Client == nil {
		return errNoRedis
	}
	return r.Client.Ping(ctx).Err()
}
