package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"mensajeria/internal/participant"
)

type gateState struct {
	gate     Gate
	lastSeq  int64
	lastSent time.Time
}

// MemoryStore keeps the log in process. One lock covers messages and gates,
// which serialises Append against SetGate for every key.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	messages []*Message // id order
	gates    map[Key]*gateState
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		gates: make(map[Key]*gateState),
		now:   time.Now,
	}
}

func (s *MemoryStore) Append(ctx context.Context, nm NewMessage) (*Message, error) {
	nm, err := normalize(nm)
	if err != nil {
		return nil, err
	}
	k := nm.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.gateLocked(k)
	if !st.gate.Activo {
		return nil, gateClosed(k)
	}

	// Sequence and timestamp never go backwards within a key, even if the
	// wall clock does.
	st.lastSeq++
	sent := s.now().UTC()
	if sent.Before(st.lastSent) {
		sent = st.lastSent
	}
	st.lastSent = sent

	s.nextID++
	msg := &Message{
		ID:         s.nextID,
		Contenido:  nm.Contenido,
		SenderType: nm.SenderType,
		SenderID:   nm.SenderID,
		ReceiverID: nm.ReceiverID,
		VacanteID:  nm.VacanteID,
		FechaEnvio: sent,
		Seq:        st.lastSeq,
	}
	s.messages = append(s.messages, msg)

	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) History(ctx context.Context, q HistoryQuery) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Message, 0)
	for _, m := range s.messages {
		k := m.Key()
		if k.CandidateID != q.CandidateID || k.CompanyID != q.CompanyID {
			continue
		}
		if q.Scoped() && k.VacanteID != q.VacanteID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}

	if q.Scoped() {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].FechaEnvio.Equal(out[j].FechaEnvio) {
				return out[i].ID < out[j].ID
			}
			return out[i].FechaEnvio.Before(out[j].FechaEnvio)
		})
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, reader participant.Ref, counterpartID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for _, m := range s.messages {
		if m.Leido || m.Receiver() != reader || m.SenderID != counterpartID {
			continue
		}
		m.Leido = true
		marked++
	}
	return marked, nil
}

func (s *MemoryStore) Gate(ctx context.Context, k Key) (*Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.gates[k]; ok {
		g := st.gate
		return &g, nil
	}
	return defaultGate(k), nil
}

func (s *MemoryStore) SetGate(ctx context.Context, k Key, activo bool) (*Gate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.gateLocked(k)
	st.gate.Activo = activo
	st.gate.UpdatedAt = s.now().UTC()

	g := st.gate
	return &g, nil
}

func (s *MemoryStore) Unread(ctx context.Context, reader participant.Ref, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Message, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.Leido || m.Receiver() != reader {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FechaEnvio.Equal(out[j].FechaEnvio) {
			return out[i].ID > out[j].ID
		}
		return out[i].FechaEnvio.After(out[j].FechaEnvio)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UnreadStats(ctx context.Context, reader participant.Ref) (*UnreadStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &UnreadStats{}
	seen := make(map[Key]bool)
	for _, m := range s.messages {
		if m.Leido || m.Receiver() != reader {
			continue
		}
		stats.Messages++
		if k := m.Key(); !seen[k] {
			seen[k] = true
			stats.Conversations++
		}
	}
	return stats, nil
}

// gateLocked returns the state for k, creating it on first use.
func (s *MemoryStore) gateLocked(k Key) *gateState {
	st, ok := s.gates[k]
	if !ok {
		st = &gateState{gate: *defaultGate(k)}
		st.gate.UpdatedAt = s.now().UTC()
		s.gates[k] = st
	}
	return st
}
