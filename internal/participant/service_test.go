package participant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func TestService_IssueAndValidateToken(t *testing.T) {
	s := NewService(NewMemoryDirectory(true), "secret")

	token, err := s.IssueToken(Participant{ID: 20, Tipo: Empresa, Nombre: "Acme"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	p, err := s.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 20 || p.Tipo != Empresa || p.Nombre != "Acme" {
		t.Errorf("unexpected participant %+v", p)
	}
}

func TestService_ValidateTokenRejects(t *testing.T) {
	s := NewService(NewMemoryDirectory(true), "secret")
	other := NewService(NewMemoryDirectory(true), "other-secret")

	wrongKey, err := other.IssueToken(Participant{ID: 1, Tipo: Usuario}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := s.IssueToken(Participant{ID: 1, Tipo: Usuario}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	for name, token := range map[string]string{
		"garbage":   "not-a-token",
		"wrong key": wrongKey,
		"expired":   expired,
	} {
		if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestService_IssueTokenNeedsIdentity(t *testing.T) {
	s := NewService(nil, "secret")
	if _, err := s.IssueToken(Participant{ID: 0, Tipo: Usuario}, time.Hour); err == nil {
		t.Error("expected error for zero id")
	}
	if _, err := s.IssueToken(Participant{ID: 3, Tipo: "ADMIN"}, time.Hour); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	closed := NewMemoryDirectory(false)
	closed.AddParticipant(Participant{ID: 10, Tipo: Usuario, Nombre: "Ana"})
	closed.AddVacante(Vacante{ID: 5, EmpresaID: 20, Titulo: "Backend"})

	p, err := closed.GetParticipant(ctx, Usuario, 10)
	if err != nil || p.Nombre != "Ana" {
		t.Errorf("expected Ana, got %+v %v", p, err)
	}
	// Same id on the other side is a different participant.
	if _, err := closed.GetParticipant(ctx, Empresa, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := closed.GetVacante(ctx, 6); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	open := NewMemoryDirectory(true)
	p, err = open.GetParticipant(ctx, Empresa, 20)
	if err != nil {
		t.Fatal(err)
	}
	if p.Nombre != "Empresa #20" {
		t.Errorf("expected fallback name, got %q", p.Nombre)
	}
}

func TestHandler_GetParticipant(t *testing.T) {
	dir := NewMemoryDirectory(false)
	dir.AddParticipant(Participant{ID: 20, Tipo: Empresa, Nombre: "Acme"})
	h := NewHandler(NewService(dir, "secret"))

	r := chi.NewRouter()
	r.Get("/participantes/{tipo}/{id}", h.GetParticipant)

	cases := []struct {
		path   string
		status int
	}{
		{"/participantes/empresa/20", http.StatusOK},
		{"/participantes/USUARIO/20", http.StatusNotFound},
		{"/participantes/ADMIN/20", http.StatusBadRequest},
		{"/participantes/EMPRESA/abc", http.StatusBadRequest},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.path, nil))
		if rec.Code != c.status {
			t.Errorf("%s: expected %d, got %d", c.path, c.status, rec.Code)
		}
	}
}
