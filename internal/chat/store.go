package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"mensajeria/internal/participant"
)

// MaxContentLength is counted in runes.
const MaxContentLength = 4000

// Store is the conversation log. It is the only writer of messages and gates.
type Store interface {
	// Append fails with ErrValidation or ErrGateClosed. Append and SetGate on
	// the same key are serialised.
	Append(ctx context.Context, nm NewMessage) (*Message, error)
	// History returns messages oldest first.
	History(ctx context.Context, q HistoryQuery) ([]*Message, error)
	// MarkRead marks what counterpartID sent to reader and returns how many
	// messages changed.
	MarkRead(ctx context.Context, reader participant.Ref, counterpartID int64) (int, error)
	Gate(ctx context.Context, k Key) (*Gate, error)
	SetGate(ctx context.Context, k Key, activo bool) (*Gate, error)
	// Unread returns up to limit unread messages for reader, newest first.
	Unread(ctx context.Context, reader participant.Ref, limit int) ([]*Message, error)
	UnreadStats(ctx context.Context, reader participant.Ref) (*UnreadStats, error)
}

// normalize validates a new message and returns it with trimmed content.
func normalize(nm NewMessage) (NewMessage, error) {
	if !nm.SenderType.Valid() {
		return nm, errors.Wrapf(ErrValidation, "senderType %q no es USUARIO ni EMPRESA", nm.SenderType)
	}
	if nm.SenderID <= 0 || nm.ReceiverID <= 0 {
		return nm, errors.Wrap(ErrValidation, "senderId y receiverId deben ser enteros positivos")
	}
	if nm.VacanteID < 0 {
		return nm, errors.Wrap(ErrValidation, "vacanteId no puede ser negativo")
	}

	nm.Contenido = strings.TrimSpace(nm.Contenido)
	if nm.Contenido == "" {
		return nm, errors.Wrap(ErrValidation, "el mensaje no puede estar vacío")
	}
	if utf8.RuneCountInString(nm.Contenido) > MaxContentLength {
		return nm, errors.Wrapf(ErrValidation, "el mensaje supera %d caracteres", MaxContentLength)
	}
	return nm, nil
}

func gateClosed(k Key) error {
	return errors.Wrapf(ErrGateClosed, "el chat con el candidato %d está deshabilitado por la empresa %d", k.CandidateID, k.CompanyID)
}
