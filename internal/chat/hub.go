package chat

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"mensajeria/internal/participant"
)

// Envelope is a payload addressed to one participant's sockets.
type Envelope struct {
	Target  participant.Ref
	Payload []byte
}

// Hub owns the local websocket clients. Run is the only goroutine that
// touches the clients map.
type Hub struct {
	clients    map[participant.Ref]map[*Client]bool
	broadcast  chan *Envelope // From Redis -> Clients
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	redis      *redis.Client
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[participant.Ref]map[*Client]bool),
		broadcast:  make(chan *Envelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		redis:      redisClient,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for client := range conns {
					close(client.Send)
				}
			}
			h.clients = make(map[participant.Ref]map[*Client]bool)
			return

		case client := <-h.Register:
			conns, ok := h.clients[client.Who]
			if !ok {
				conns = make(map[*Client]bool)
				h.clients[client.Who] = conns
			}
			conns[client] = true
			log.Debugf("socket %s registered for %s", client.ID, client.Who)

		case client := <-h.Unregister:
			h.remove(client)

		case env := <-h.broadcast:
			for client := range h.clients[env.Target] {
				select {
				case client.Send <- env.Payload:
				default:
					// Slow consumer; it will catch up on the next poll.
					h.remove(client)
				}
			}
		}
	}
}

// Deliver hands a payload to the run loop. It drops the payload once the hub
// has stopped.
func (h *Hub) Deliver(env *Envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	}
}

// Publish delivers ev to sockets on this instance only. It is the Publisher
// used when no Redis is configured.
func (h *Hub) Publish(ctx context.Context, to participant.Ref, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	h.Deliver(&Envelope{Target: to, Payload: payload})
	return nil
}

// Attach registers a client, reporting false when the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Detach unregisters a client; a stopped hub has already closed it.
func (h *Hub) Detach(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	conns, ok := h.clients[client.Who]
	if !ok {
		return
	}
	if _, exists := conns[client]; exists {
		delete(conns, client)
		close(client.Send)
	}
	if len(conns) == 0 {
		delete(h.clients, client.Who)
	}
}

// SubscribeToRedis forwards every participant channel to the run loop. It
// returns when ctx is cancelled.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			target, valid := ParseChannel(msg.Channel)
			if !valid {
				log.Warningf("ignoring message on unexpected channel %q", msg.Channel)
				continue
			}
			h.Deliver(&Envelope{Target: target, Payload: []byte(msg.Payload)})
		}
	}
}
