package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"mensajeria/internal/participant"
)

var log = logging.MustGetLogger("chat")

const channelPrefix = "mensajeria:"

// Publisher delivers push events to one participant. Delivery is best effort;
// polling stays authoritative.
type Publisher interface {
	Publish(ctx context.Context, to participant.Ref, ev *Event) error
}

func newEvent(tipo string) *Event {
	return &Event{
		ID:    uuid.NewString(),
		Tipo:  tipo,
		Fecha: time.Now().UTC(),
	}
}

// RedisPublisher fans events out through one pub/sub channel per
// participant, so every instance holding a socket for them receives it.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(redisClient *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: redisClient}
}

func (p *RedisPublisher) Publish(ctx context.Context, to participant.Ref, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := p.redis.Publish(ctx, ChannelFor(to), payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, participant.Ref, *Event) error { return nil }

// ChannelFor names the pub/sub channel of a participant, e.g.
// "mensajeria:EMPRESA:20".
func ChannelFor(r participant.Ref) string {
	return fmt.Sprintf("%s%s:%d", channelPrefix, r.Tipo, r.ID)
}

// ParseChannel is the inverse of ChannelFor.
func ParseChannel(name string) (participant.Ref, bool) {
	if !strings.HasPrefix(name, channelPrefix) {
		return participant.Ref{}, false
	}
	parts := strings.Split(strings.TrimPrefix(name, channelPrefix), ":")
	if len(parts) != 2 {
		return participant.Ref{}, false
	}
	tipo := participant.Tipo(parts[0])
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if !tipo.Valid() || err != nil || id <= 0 {
		return participant.Ref{}, false
	}
	return participant.Ref{Tipo: tipo, ID: id}, true
}
