package chat

import (
	"context"
	"database/sql"
	"time"

	"mensajeria/internal/participant"
)

// Repository is the Postgres Store. The chat_gates row of a key is locked for
// the whole of Append, and SetGate upserts the same row, so the two never
// interleave for one key.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const messageColumns = `id, contenido, sender_type, sender_id, receiver_id, vacante_id, fecha_envio, leido, seq`

func (r *Repository) Append(ctx context.Context, nm NewMessage) (*Message, error) {
	nm, err := normalize(nm)
	if err != nil {
		return nil, err
	}
	k := nm.Key()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError(err, "begin append")
	}
	defer tx.Rollback()

	ensure := `INSERT INTO chat_gates (usuario_id, empresa_id, vacante_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, ensure, k.CandidateID, k.CompanyID, k.VacanteID); err != nil {
		return nil, storageError(err, "ensure gate")
	}

	var (
		activo   bool
		lastSeq  int64
		lastSent sql.NullTime
	)
	lock := `SELECT activo, last_seq, last_sent_at FROM chat_gates
		WHERE usuario_id = $1 AND empresa_id = $2 AND vacante_id = $3 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lock, k.CandidateID, k.CompanyID, k.VacanteID).Scan(&activo, &lastSeq, &lastSent); err != nil {
		return nil, storageError(err, "lock gate")
	}
	if !activo {
		return nil, gateClosed(k)
	}

	msg := &Message{
		Contenido:  nm.Contenido,
		SenderType: nm.SenderType,
		SenderID:   nm.SenderID,
		ReceiverID: nm.ReceiverID,
		VacanteID:  nm.VacanteID,
		FechaEnvio: r.now().UTC().Truncate(time.Microsecond), // timestamptz precision
		Seq:        lastSeq + 1,
	}
	if lastSent.Valid && msg.FechaEnvio.Before(lastSent.Time.UTC()) {
		msg.FechaEnvio = lastSent.Time.UTC()
	}

	bump := `UPDATE chat_gates SET last_seq = $4, last_sent_at = $5
		WHERE usuario_id = $1 AND empresa_id = $2 AND vacante_id = $3`
	if _, err := tx.ExecContext(ctx, bump, k.CandidateID, k.CompanyID, k.VacanteID, msg.Seq, msg.FechaEnvio); err != nil {
		return nil, storageError(err, "bump sequence")
	}

	insert := `INSERT INTO mensajes
		(usuario_id, empresa_id, vacante_id, sender_type, sender_id, receiver_id, contenido, fecha_envio, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err = tx.QueryRowContext(ctx, insert,
		k.CandidateID, k.CompanyID, k.VacanteID,
		string(msg.SenderType), msg.SenderID, msg.ReceiverID,
		msg.Contenido, msg.FechaEnvio, msg.Seq,
	).Scan(&msg.ID)
	if err != nil {
		return nil, storageError(err, "insert message")
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError(err, "commit append")
	}
	return msg, nil
}

func (r *Repository) History(ctx context.Context, q HistoryQuery) ([]*Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.Scoped() {
		query := `SELECT ` + messageColumns + ` FROM mensajes
			WHERE usuario_id = $1 AND empresa_id = $2 AND vacante_id = $3
			ORDER BY seq ASC`
		rows, err = r.db.QueryContext(ctx, query, q.CandidateID, q.CompanyID, q.VacanteID)
	} else {
		query := `SELECT ` + messageColumns + ` FROM mensajes
			WHERE usuario_id = $1 AND empresa_id = $2
			ORDER BY fecha_envio ASC, id ASC`
		rows, err = r.db.QueryContext(ctx, query, q.CandidateID, q.CompanyID)
	}
	if err != nil {
		return nil, storageError(err, "query history")
	}
	return scanMessages(rows)
}

func (r *Repository) MarkRead(ctx context.Context, reader participant.Ref, counterpartID int64) (int, error) {
	query := `UPDATE mensajes SET leido = TRUE
		WHERE receiver_id = $1 AND sender_type = $2 AND sender_id = $3 AND leido = FALSE`
	res, err := r.db.ExecContext(ctx, query, reader.ID, string(reader.Tipo.Counterpart()), counterpartID)
	if err != nil {
		return 0, storageError(err, "mark read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError(err, "mark read")
	}
	return int(n), nil
}

func (r *Repository) Gate(ctx context.Context, k Key) (*Gate, error) {
	g := defaultGate(k)
	query := `SELECT activo, updated_at FROM chat_gates
		WHERE usuario_id = $1 AND empresa_id = $2 AND vacante_id = $3`
	err := r.db.QueryRowContext(ctx, query, k.CandidateID, k.CompanyID, k.VacanteID).Scan(&g.Activo, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, nil
	}
	if err != nil {
		return nil, storageError(err, "query gate")
	}
	return g, nil
}

func (r *Repository) SetGate(ctx context.Context, k Key, activo bool) (*Gate, error) {
	g := defaultGate(k)
	query := `INSERT INTO chat_gates (usuario_id, empresa_id, vacante_id, activo, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (usuario_id, empresa_id, vacante_id)
		DO UPDATE SET activo = EXCLUDED.activo, updated_at = EXCLUDED.updated_at
		RETURNING activo, updated_at`
	err := r.db.QueryRowContext(ctx, query, k.CandidateID, k.CompanyID, k.VacanteID, activo, r.now().UTC().Truncate(time.Microsecond)).Scan(&g.Activo, &g.UpdatedAt)
	if err != nil {
		return nil, storageError(err, "set gate")
	}
	return g, nil
}

func (r *Repository) Unread(ctx context.Context, reader participant.Ref, limit int) ([]*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM mensajes
		WHERE receiver_id = $1 AND sender_type = $2 AND leido = FALSE
		ORDER BY fecha_envio DESC, id DESC
		LIMIT $3`
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, query, reader.ID, string(reader.Tipo.Counterpart()), limit)
	if err != nil {
		return nil, storageError(err, "query unread")
	}
	return scanMessages(rows)
}

func (r *Repository) UnreadStats(ctx context.Context, reader participant.Ref) (*UnreadStats, error) {
	stats := &UnreadStats{}
	query := `SELECT COUNT(*), COUNT(DISTINCT (sender_id, vacante_id)) FROM mensajes
		WHERE receiver_id = $1 AND sender_type = $2 AND leido = FALSE`
	err := r.db.QueryRowContext(ctx, query, reader.ID, string(reader.Tipo.Counterpart())).Scan(&stats.Messages, &stats.Conversations)
	if err != nil {
		return nil, storageError(err, "count unread")
	}
	return stats, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var (
			msg        = &Message{}
			senderType string
		)
		if err := rows.Scan(&msg.ID, &msg.Contenido, &senderType, &msg.SenderID, &msg.ReceiverID,
			&msg.VacanteID, &msg.FechaEnvio, &msg.Leido, &msg.Seq); err != nil {
			return nil, storageError(err, "scan message")
		}
		msg.SenderType = participant.Tipo(senderType)
		msg.FechaEnvio = msg.FechaEnvio.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "iterate messages")
	}
	return messages, nil
}
