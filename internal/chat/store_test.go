package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"mensajeria/internal/db"
	"mensajeria/internal/participant"
)

var (
	candidate = participant.Ref{Tipo: participant.Usuario, ID: 10}
	company   = participant.Ref{Tipo: participant.Empresa, ID: 20}
)

func fromCandidate(text string, vacante int64) NewMessage {
	return NewMessage{SenderType: participant.Usuario, SenderID: 10, ReceiverID: 20, VacanteID: vacante, Contenido: text}
}

func fromCompany(text string, vacante int64) NewMessage {
	return NewMessage{SenderType: participant.Empresa, SenderID: 20, ReceiverID: 10, VacanteID: vacante, Contenido: text}
}

// forEachStore runs test against the memory store and, when
// MENSAJERIA_TEST_DSN points at a disposable database, the Postgres store.
func forEachStore(t *testing.T, test func(t *testing.T, s Store)) {
	stores := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"memory", func(*testing.T) Store { return NewMemoryStore() }},
		{"postgres", openPostgres},
	}
	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			test(t, st.open(t))
		})
	}
}

func openPostgres(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("MENSAJERIA_TEST_DSN")
	if dsn == "" {
		t.Skip("MENSAJERIA_TEST_DSN not set")
	}

	database, err := db.NewDatabase(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := database.AutoMigrate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := database.Conn.ExecContext(ctx, `TRUNCATE mensajes, chat_gates RESTART IDENTITY`); err != nil {
		t.Fatal(err)
	}
	return NewRepository(database.Conn)
}

func setClock(t *testing.T, s Store, now func() time.Time) {
	t.Helper()
	switch s := s.(type) {
	case *MemoryStore:
		s.now = now
	case *Repository:
		s.now = now
	default:
		t.Fatalf("no clock on %T", s)
	}
}

func TestStore_AppendThenHistory(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		msg, err := s.Append(ctx, fromCandidate("  Hola  ", 5))
		if err != nil {
			t.Fatal(err)
		}
		if msg.ID == 0 || msg.Seq != 1 || msg.Leido {
			t.Errorf("unexpected message %+v", msg)
		}
		if msg.Contenido != "Hola" {
			t.Errorf("expected trimmed content, got %q", msg.Contenido)
		}

		history, err := s.History(ctx, HistoryQuery{CandidateID: 10, CompanyID: 20, VacanteID: 5})
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 message, got %d", len(history))
		}
		got := history[0]
		if got.ID != msg.ID || got.Leido || got.Contenido != "Hola" || got.Seq != 1 {
			t.Errorf("unexpected history entry %+v", got)
		}
		if got.SenderType != participant.Usuario || got.SenderID != 10 || got.ReceiverID != 20 || got.VacanteID != 5 {
			t.Errorf("participants not stored as sent: %+v", got)
		}
		if !got.FechaEnvio.Equal(msg.FechaEnvio) {
			t.Errorf("fechaEnvio changed on the way back: %s vs %s", got.FechaEnvio, msg.FechaEnvio)
		}
	})
}

func TestStore_AppendValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		cases := map[string]NewMessage{
			"empty":       fromCandidate("", 0),
			"whitespace":  fromCandidate(" \n\t ", 0),
			"too long":    fromCandidate(strings.Repeat("a", MaxContentLength+1), 0),
			"sender type": {SenderType: "ADMIN", SenderID: 1, ReceiverID: 2, Contenido: "x"},
			"receiver":    {SenderType: participant.Usuario, SenderID: 1, ReceiverID: 0, Contenido: "x"},
		}
		for name, nm := range cases {
			if _, err := s.Append(ctx, nm); !errors.Is(err, ErrValidation) {
				t.Errorf("%s: expected ErrValidation, got %v", name, err)
			}
		}

		// Rune count, not bytes.
		if _, err := s.Append(ctx, fromCandidate(strings.Repeat("ñ", MaxContentLength), 0)); err != nil {
			t.Errorf("expected %d runes to be accepted, got %v", MaxContentLength, err)
		}
	})
}

func TestStore_Gate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		k := Key{CandidateID: 10, CompanyID: 20, VacanteID: 5}

		g, err := s.Gate(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if !g.Activo {
			t.Error("unset gate should be active")
		}

		if _, err := s.Append(ctx, fromCandidate("antes", 5)); err != nil {
			t.Fatal(err)
		}
		g, err = s.SetGate(ctx, k, false)
		if err != nil {
			t.Fatal(err)
		}
		if g.Activo || g.Key() != k {
			t.Errorf("unexpected gate %+v", g)
		}
		if g, _ := s.Gate(ctx, k); g.Activo {
			t.Error("gate should read back closed")
		}

		for _, nm := range []NewMessage{fromCandidate("bloqueado", 5), fromCompany("bloqueado", 5)} {
			if _, err := s.Append(ctx, nm); !errors.Is(err, ErrGateClosed) {
				t.Errorf("expected ErrGateClosed, got %v", err)
			}
		}

		// Other keys of the same pair are unaffected.
		if _, err := s.Append(ctx, fromCandidate("otra vacante", 6)); err != nil {
			t.Errorf("expected other vacante to accept, got %v", err)
		}

		history, err := s.History(ctx, HistoryQuery{CandidateID: 10, CompanyID: 20, VacanteID: 5})
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].Contenido != "antes" {
			t.Errorf("history changed while closed: %+v", history)
		}

		// Closing twice is the same as closing once.
		if _, err := s.SetGate(ctx, k, false); err != nil {
			t.Fatal(err)
		}
		if _, err := s.SetGate(ctx, k, true); err != nil {
			t.Fatal(err)
		}
		msg, err := s.Append(ctx, fromCandidate("de nuevo", 5))
		if err != nil {
			t.Fatalf("expected reopened gate to accept, got %v", err)
		}
		if msg.Seq != 2 {
			t.Errorf("rejected appends must not consume sequence numbers, got seq %d", msg.Seq)
		}
	})
}

func TestStore_MarkReadIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if _, err := s.Append(ctx, fromCandidate(fmt.Sprintf("m%d", i), 5)); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := s.Append(ctx, fromCompany("respuesta", 5)); err != nil {
			t.Fatal(err)
		}

		n, err := s.MarkRead(ctx, company, 10)
		if err != nil {
			t.Fatal(err)
		}
		if n != 3 {
			t.Errorf("expected 3 marked, got %d", n)
		}
		n, err = s.MarkRead(ctx, company, 10)
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("second call should mark nothing, got %d", n)
		}

		stats, err := s.UnreadStats(ctx, company)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Messages != 0 {
			t.Errorf("expected no unread for company, got %d", stats.Messages)
		}
		stats, err = s.UnreadStats(ctx, candidate)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Messages != 1 {
			t.Errorf("candidate's unread must be untouched, got %d", stats.Messages)
		}
	})
}

func TestStore_SidesDoNotCollide(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		// Candidate 20 and company 20 are different people.
		if _, err := s.Append(ctx, NewMessage{SenderType: participant.Empresa, SenderID: 30, ReceiverID: 20, Contenido: "para el candidato 20"}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Append(ctx, fromCandidate("para la empresa 20", 0)); err != nil {
			t.Fatal(err)
		}

		stats, err := s.UnreadStats(ctx, company)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Messages != 1 {
			t.Errorf("expected 1 unread for company 20, got %d", stats.Messages)
		}
		if n, _ := s.MarkRead(ctx, participant.Ref{Tipo: participant.Usuario, ID: 20}, 10); n != 0 {
			t.Errorf("candidate 20 must not mark company 20's messages, marked %d", n)
		}
	})
}

func TestStore_UnreadStatsCountConversations(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		msgs := []NewMessage{
			fromCompany("general 1", 0),
			fromCompany("general 2", 0),
			fromCompany("vacante 5", 5),
			{SenderType: participant.Empresa, SenderID: 21, ReceiverID: 10, Contenido: "otra empresa"},
			// Sent by the candidate, so not unread for the candidate.
			fromCandidate("respuesta", 0),
		}
		for _, nm := range msgs {
			if _, err := s.Append(ctx, nm); err != nil {
				t.Fatal(err)
			}
		}

		stats, err := s.UnreadStats(ctx, candidate)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Messages != 4 || stats.Conversations != 3 {
			t.Errorf("expected 4 messages in 3 conversations, got %+v", stats)
		}

		unread, err := s.Unread(ctx, candidate, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(unread) != 2 || unread[0].Contenido != "otra empresa" || unread[1].Contenido != "vacante 5" {
			t.Errorf("expected the two newest unread, got %+v", unread)
		}
	})
}

func TestStore_HistoryOrderUnderConcurrency(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		// A clock that jumps backwards on every other call.
		var (
			mu   sync.Mutex
			tick int
			base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		)
		setClock(t, s, func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick++
			if tick%2 == 0 {
				return base.Add(-time.Duration(tick) * time.Second)
			}
			return base.Add(time.Duration(tick) * time.Second)
		})

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					nm := fromCandidate(fmt.Sprintf("w%d-%d", w, i), 5)
					if w%2 == 1 {
						nm = fromCompany(fmt.Sprintf("w%d-%d", w, i), 5)
					}
					if _, err := s.Append(ctx, nm); err != nil {
						t.Error(err)
					}
				}
			}(w)
		}
		wg.Wait()

		history, err := s.History(ctx, HistoryQuery{CandidateID: 10, CompanyID: 20, VacanteID: 5})
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 200 {
			t.Fatalf("expected 200 messages, got %d", len(history))
		}
		for i := 1; i < len(history); i++ {
			prev, cur := history[i-1], history[i]
			if cur.Seq != prev.Seq+1 {
				t.Fatalf("sequence gap at %d: %d then %d", i, prev.Seq, cur.Seq)
			}
			if cur.FechaEnvio.Before(prev.FechaEnvio) {
				t.Fatalf("fechaEnvio went backwards at %d", i)
			}
		}
	})
}

func TestStore_AppendAndSetGateDoNotInterleave(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		k := Key{CandidateID: 10, CompanyID: 20, VacanteID: 5}

		var (
			wg       sync.WaitGroup
			accepted int64
			closed   = make(chan struct{})
		)
		for w := 0; w < 6; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				rejected := false
				for i := 0; i < 30; i++ {
					var alreadyClosed bool
					select {
					case <-closed:
						alreadyClosed = true
					default:
					}

					_, err := s.Append(ctx, fromCandidate(fmt.Sprintf("w%d-%d", w, i), 5))
					switch {
					case err == nil:
						if alreadyClosed {
							t.Errorf("w%d-%d accepted after the gate was closed", w, i)
						}
						if rejected {
							t.Errorf("w%d-%d accepted after an earlier rejection", w, i)
						}
						atomic.AddInt64(&accepted, 1)
					case errors.Is(err, ErrGateClosed):
						rejected = true
					default:
						t.Error(err)
					}
				}
			}(w)
		}

		time.Sleep(5 * time.Millisecond)
		if _, err := s.SetGate(ctx, k, false); err != nil {
			t.Fatal(err)
		}
		close(closed)
		wg.Wait()

		history, err := s.History(ctx, HistoryQuery{CandidateID: 10, CompanyID: 20, VacanteID: 5})
		if err != nil {
			t.Fatal(err)
		}
		if int64(len(history)) != atomic.LoadInt64(&accepted) {
			t.Fatalf("stored %d messages, accepted %d", len(history), accepted)
		}
		for i, m := range history {
			if m.Seq != int64(i+1) {
				t.Fatalf("sequence gap at %d: seq %d", i, m.Seq)
			}
		}
	})
}

func TestStore_GeneralHistorySpansVacantes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for _, nm := range []NewMessage{fromCandidate("general", 0), fromCompany("vacante 5", 5), fromCandidate("vacante 6", 6)} {
			if _, err := s.Append(ctx, nm); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := s.Append(ctx, NewMessage{SenderType: participant.Usuario, SenderID: 11, ReceiverID: 20, Contenido: "otro candidato"}); err != nil {
			t.Fatal(err)
		}

		all, err := s.History(ctx, HistoryQuery{CandidateID: 10, CompanyID: 20})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 messages for the pair, got %d", len(all))
		}
		for i, want := range []string{"general", "vacante 5", "vacante 6"} {
			if all[i].Contenido != want {
				t.Errorf("position %d: expected %q, got %q", i, want, all[i].Contenido)
			}
		}
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		msg, err := s.Append(ctx, fromCandidate("original", 0))
		if err != nil {
			t.Fatal(err)
		}
		msg.Contenido = "cambiado"
		msg.Leido = true

		history, err := s.History(ctx, HistoryQuery{CandidateID: 10, CompanyID: 20})
		if err != nil {
			t.Fatal(err)
		}
		if history[0].Contenido != "original" || history[0].Leido {
			t.Errorf("store was mutated through a returned message: %+v", history[0])
		}
	})
}
