package participant

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Tipo tells the two sides of a conversation apart. Candidate and company ids
// live in separate id spaces, so an id alone never identifies a participant.
type Tipo string

const (
	Usuario Tipo = "USUARIO" // candidate side
	Empresa Tipo = "EMPRESA" // company side
)

func (t Tipo) Valid() bool {
	return t == Usuario || t == Empresa
}

// Counterpart returns the opposite side.
func (t Tipo) Counterpart() Tipo {
	if t == Empresa {
		return Usuario
	}
	return Empresa
}

// Ref points at one participant.
type Ref struct {
	Tipo Tipo  `json:"tipo"`
	ID   int64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Tipo, r.ID)
}

type Participant struct {
	ID     int64  `json:"id"`
	Tipo   Tipo   `json:"tipo"`
	Nombre string `json:"nombre"`
}

func (p *Participant) Ref() Ref {
	return Ref{Tipo: p.Tipo, ID: p.ID}
}

// Vacante is a job posting. Only the owning company matters here.
type Vacante struct {
	ID        int64  `json:"id"`
	EmpresaID int64  `json:"empresaId"`
	Titulo    string `json:"titulo"`
}

type Claims struct {
	ID     int64  `json:"id"`
	Tipo   Tipo   `json:"tipo"`
	Nombre string `json:"nombre"`
	jwt.RegisteredClaims
}

// FallbackName is what the UI shows when the directory has no record.
func FallbackName(r Ref) string {
	if r.Tipo == Empresa {
		return fmt.Sprintf("Empresa #%d", r.ID)
	}
	return fmt.Sprintf("Candidato #%d", r.ID)
}
