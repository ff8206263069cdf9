package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"mensajeria/internal/participant"
)

// PreviewLength is the digest preview size in runes.
const PreviewLength = 80

const (
	DefaultDigestLimit = 5
	MaxDigestLimit     = 50
)

// Counters derives unread aggregates straight from the store on every call,
// so a poll always sees the writes that preceded it.
type Counters struct {
	store Store
	dir   participant.Directory
}

func NewCounters(store Store, dir participant.Directory) *Counters {
	return &Counters{store: store, dir: dir}
}

func (c *Counters) UnreadMessageCount(ctx context.Context, who participant.Ref) (int, error) {
	stats, err := c.store.UnreadStats(ctx, who)
	if err != nil {
		return 0, err
	}
	return stats.Messages, nil
}

// UnreadNotificationCount counts conversations, not messages: one per
// counterpart and vacante with something unread.
func (c *Counters) UnreadNotificationCount(ctx context.Context, who participant.Ref) (int, error) {
	stats, err := c.store.UnreadStats(ctx, who)
	if err != nil {
		return 0, err
	}
	return stats.Conversations, nil
}

// Digest returns the newest limit unread messages for who.
func (c *Counters) Digest(ctx context.Context, who participant.Ref, limit int) ([]DigestEntry, error) {
	limit = clampLimit(limit)

	msgs, err := c.store.Unread(ctx, who, limit)
	if err != nil {
		return nil, err
	}

	names := make(map[participant.Ref]string)
	entries := make([]DigestEntry, 0, len(msgs))
	for _, m := range msgs {
		sender := m.Sender()
		name, ok := names[sender]
		if !ok {
			name, err = c.senderName(ctx, sender)
			if err != nil {
				return nil, err
			}
			names[sender] = name
		}
		entries = append(entries, DigestEntry{
			MessageID:   m.ID,
			SenderID:    m.SenderID,
			SenderType:  m.SenderType,
			SenderName:  name,
			PreviewText: Preview(m.Contenido),
			VacanteID:   m.VacanteID,
			FechaEnvio:  m.FechaEnvio,
		})
	}
	return entries, nil
}

func (c *Counters) Summary(ctx context.Context, who participant.Ref, limit int) (*Summary, error) {
	stats, err := c.store.UnreadStats(ctx, who)
	if err != nil {
		return nil, err
	}
	digest, err := c.Digest(ctx, who, limit)
	if err != nil {
		return nil, err
	}
	return &Summary{
		UnreadMessages:      stats.Messages,
		UnreadNotifications: stats.Conversations,
		UltimosMensajes:     digest,
	}, nil
}

func (c *Counters) senderName(ctx context.Context, who participant.Ref) (string, error) {
	if c.dir == nil {
		return participant.FallbackName(who), nil
	}
	p, err := c.dir.GetParticipant(ctx, who.Tipo, who.ID)
	if err != nil {
		if errors.Is(err, participant.ErrNotFound) {
			return participant.FallbackName(who), nil
		}
		return "", directoryUnavailable(err)
	}
	if p.Nombre == "" {
		return participant.FallbackName(who), nil
	}
	return p.Nombre, nil
}

// Preview collapses whitespace and cuts to PreviewLength runes.
func Preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= PreviewLength {
		return s
	}
	return strings.TrimSpace(string(r[:PreviewLength]))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultDigestLimit
	}
	if limit > MaxDigestLimit {
		return MaxDigestLimit
	}
	return limit
}
