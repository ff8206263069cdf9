package chat

import (
	"context"

	"github.com/pkg/errors"

	"mensajeria/internal/participant"
)

// Service applies caller identity and existence checks on top of the store,
// then pushes what changed to the affected participants.
type Service struct {
	store    Store
	dir      participant.Directory
	counters *Counters
	events   Publisher
}

func NewService(store Store, dir participant.Directory, events Publisher) *Service {
	if events == nil {
		events = nopPublisher{}
	}
	return &Service{
		store:    store,
		dir:      dir,
		counters: NewCounters(store, dir),
		events:   events,
	}
}

func (s *Service) Counters() *Counters {
	return s.counters
}

// Send stores a message from caller. The sender in nm must be the caller.
func (s *Service) Send(ctx context.Context, caller *participant.Participant, nm NewMessage) (*Message, error) {
	if caller.Tipo != nm.SenderType || caller.ID != nm.SenderID {
		return nil, errors.Wrap(ErrForbidden, "solo puede enviar mensajes en nombre propio")
	}
	if !nm.SenderType.Valid() || nm.ReceiverID <= 0 {
		return nil, errors.Wrap(ErrValidation, "destinatario inválido")
	}
	if err := s.requireParticipant(ctx, nm.SenderType.Counterpart(), nm.ReceiverID); err != nil {
		return nil, err
	}
	if err := s.requireVacante(ctx, nm.VacanteID, nm.Key().CompanyID); err != nil {
		return nil, err
	}

	msg, err := s.store.Append(ctx, nm)
	if err != nil {
		return nil, err
	}

	ev := newEvent(EventNewMessage)
	ev.Mensaje = msg
	s.publish(ctx, msg.Receiver(), ev)

	return msg, nil
}

// History returns the pair's messages and whether the gate is open. A general
// query (no vacante) reports the gate of the general conversation.
func (s *Service) History(ctx context.Context, caller *participant.Participant, q HistoryQuery) (*History, error) {
	if err := memberOf(caller, q.Key()); err != nil {
		return nil, err
	}

	msgs, err := s.store.History(ctx, q)
	if err != nil {
		return nil, err
	}
	gate, err := s.store.Gate(ctx, q.Key())
	if err != nil {
		return nil, err
	}
	return &History{Mensajes: msgs, ChatActivo: gate.Activo}, nil
}

// MarkRead marks everything counterpartID sent to the caller as read.
func (s *Service) MarkRead(ctx context.Context, caller *participant.Participant, readerID, counterpartID int64) (int, error) {
	if caller.ID != readerID {
		return 0, errors.Wrap(ErrForbidden, "solo puede marcar como leídos sus propios mensajes")
	}

	reader := caller.Ref()
	n, err := s.store.MarkRead(ctx, reader, counterpartID)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		ev := newEvent(EventRead)
		ev.Lector = &reader
		ev.Marcados = n
		s.publish(ctx, participant.Ref{Tipo: reader.Tipo.Counterpart(), ID: counterpartID}, ev)
	}
	return n, nil
}

// SetGate opens or closes a conversation. Only the company side may do it and
// the company is always the caller.
func (s *Service) SetGate(ctx context.Context, caller *participant.Participant, candidateID, vacanteID int64, activo bool) (*Gate, error) {
	if caller.Tipo != participant.Empresa {
		return nil, errors.Wrap(ErrForbidden, "solo la empresa puede habilitar o deshabilitar el chat")
	}
	if candidateID <= 0 || vacanteID < 0 {
		return nil, errors.Wrap(ErrValidation, "usuarioId y vacanteId inválidos")
	}
	if err := s.requireParticipant(ctx, participant.Usuario, candidateID); err != nil {
		return nil, err
	}
	if err := s.requireVacante(ctx, vacanteID, caller.ID); err != nil {
		return nil, err
	}

	k := Key{CandidateID: candidateID, CompanyID: caller.ID, VacanteID: vacanteID}
	gate, err := s.store.SetGate(ctx, k, activo)
	if err != nil {
		return nil, err
	}

	ev := newEvent(EventGate)
	ev.Chat = gate
	s.publish(ctx, participant.Ref{Tipo: participant.Usuario, ID: candidateID}, ev)
	s.publish(ctx, caller.Ref(), ev)

	return gate, nil
}

// Summary returns counters and digest for who, which must be the caller.
func (s *Service) Summary(ctx context.Context, caller *participant.Participant, who participant.Ref, limit int) (*Summary, error) {
	if caller.Ref() != who {
		return nil, errors.Wrap(ErrForbidden, "solo puede consultar sus propios contadores")
	}
	return s.counters.Summary(ctx, who, limit)
}

func (s *Service) UnreadCount(ctx context.Context, caller *participant.Participant, who participant.Ref) (int, error) {
	if caller.Ref() != who {
		return 0, errors.Wrap(ErrForbidden, "solo puede consultar sus propios contadores")
	}
	return s.counters.UnreadMessageCount(ctx, who)
}

func (s *Service) requireParticipant(ctx context.Context, tipo participant.Tipo, id int64) error {
	if s.dir == nil {
		return nil
	}
	if _, err := s.dir.GetParticipant(ctx, tipo, id); err != nil {
		if errors.Is(err, participant.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "no existe %s con id %d", tipoLabel(tipo), id)
		}
		return directoryUnavailable(err)
	}
	return nil
}

// requireVacante checks that a posting exists and belongs to companyID. An
// owner of 0 means the directory does not track ownership.
func (s *Service) requireVacante(ctx context.Context, vacanteID, companyID int64) error {
	if vacanteID == 0 || s.dir == nil {
		return nil
	}
	v, err := s.dir.GetVacante(ctx, vacanteID)
	if err != nil {
		if errors.Is(err, participant.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "no existe la vacante %d", vacanteID)
		}
		return directoryUnavailable(err)
	}
	if v.EmpresaID != 0 && v.EmpresaID != companyID {
		return errors.Wrapf(ErrValidation, "la vacante %d no pertenece a la empresa %d", vacanteID, companyID)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, to participant.Ref, ev *Event) {
	if err := s.events.Publish(ctx, to, ev); err != nil {
		log.Warningf("push %s to %s failed: %v", ev.Tipo, to, err)
	}
}

func memberOf(caller *participant.Participant, k Key) error {
	switch {
	case caller.Tipo == participant.Usuario && caller.ID == k.CandidateID:
		return nil
	case caller.Tipo == participant.Empresa && caller.ID == k.CompanyID:
		return nil
	}
	return errors.Wrap(ErrForbidden, "no participa en esta conversación")
}

func tipoLabel(t participant.Tipo) string {
	if t == participant.Empresa {
		return "empresa"
	}
	return "candidato"
}
