package participant

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryDirectory is the in-process Directory used with the memory store.
// An open directory answers for any id it has not been told about, which is
// what local runs and the load generator want.
type MemoryDirectory struct {
	mu           sync.RWMutex
	open         bool
	participants map[Ref]*Participant
	vacantes     map[int64]*Vacante
}

func NewMemoryDirectory(open bool) *MemoryDirectory {
	return &MemoryDirectory{
		open:         open,
		participants: make(map[Ref]*Participant),
		vacantes:     make(map[int64]*Vacante),
	}
}

func (d *MemoryDirectory) AddParticipant(p Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[p.Ref()] = &p
}

func (d *MemoryDirectory) AddVacante(v Vacante) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vacantes[v.ID] = &v
}

func (d *MemoryDirectory) GetParticipant(ctx context.Context, tipo Tipo, id int64) (*Participant, error) {
	if !tipo.Valid() {
		return nil, errors.Errorf("unknown participant type %q", tipo)
	}
	ref := Ref{Tipo: tipo, ID: id}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.participants[ref]; ok {
		cp := *p
		return &cp, nil
	}
	if d.open {
		return &Participant{ID: id, Tipo: tipo, Nombre: FallbackName(ref)}, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "%s %d", tipo, id)
}

// GetVacante in an open directory returns a posting with no owner, which
// callers treat as "any company".
func (d *MemoryDirectory) GetVacante(ctx context.Context, id int64) (*Vacante, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if v, ok := d.vacantes[id]; ok {
		cp := *v
		return &cp, nil
	}
	if d.open {
		return &Vacante{ID: id}, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "vacante %d", id)
}
