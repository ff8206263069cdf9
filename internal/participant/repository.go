package participant

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("participant not found")

// Directory resolves participants and postings owned by other services.
type Directory interface {
	GetParticipant(ctx context.Context, tipo Tipo, id int64) (*Participant, error)
	GetVacante(ctx context.Context, id int64) (*Vacante, error)
}

// Repository reads the usuarios, empresas and vacantes tables.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetParticipant(ctx context.Context, tipo Tipo, id int64) (*Participant, error) {
	p := &Participant{ID: id, Tipo: tipo}

	var err error
	switch tipo {
	case Usuario:
		var nombres, apellidos string
		query := "SELECT nombres, apellidos FROM usuarios WHERE id = $1"
		err = r.db.QueryRowContext(ctx, query, id).Scan(&nombres, &apellidos)
		p.Nombre = strings.TrimSpace(nombres + " " + apellidos)
	case Empresa:
		query := "SELECT nombre FROM empresas WHERE id = $1"
		err = r.db.QueryRowContext(ctx, query, id).Scan(&p.Nombre)
	default:
		return nil, errors.Errorf("unknown participant type %q", tipo)
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "%s %d", tipo, id)
		}
		return nil, errors.Wrap(err, "query participant")
	}
	return p, nil
}

func (r *Repository) GetVacante(ctx context.Context, id int64) (*Vacante, error) {
	v := &Vacante{}
	query := "SELECT id, empresa_id, titulo FROM vacantes WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.EmpresaID, &v.Titulo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "vacante %d", id)
		}
		return nil, errors.Wrap(err, "query vacante")
	}
	return v, nil
}
