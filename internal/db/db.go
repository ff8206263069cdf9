package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// AutoMigrate creates the messaging tables. usuarios, empresas and vacantes
// belong to the registration services; they are only created here so a fresh
// database can run standalone.
func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS usuarios (
            id BIGSERIAL PRIMARY KEY,
            nombres VARCHAR(120) NOT NULL,
            apellidos VARCHAR(120) NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS empresas (
            id BIGSERIAL PRIMARY KEY,
            nombre VARCHAR(200) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS vacantes (
            id BIGSERIAL PRIMARY KEY,
            empresa_id BIGINT REFERENCES empresas(id) ON DELETE CASCADE,
            titulo VARCHAR(200) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		// vacante_id 0 is the general conversation of a pair.
		`CREATE TABLE IF NOT EXISTS chat_gates (
            usuario_id BIGINT NOT NULL,
            empresa_id BIGINT NOT NULL,
            vacante_id BIGINT NOT NULL DEFAULT 0,
            activo BOOLEAN NOT NULL DEFAULT TRUE,
            last_seq BIGINT NOT NULL DEFAULT 0,
            last_sent_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (usuario_id, empresa_id, vacante_id)
        )`,

		`CREATE TABLE IF NOT EXISTS mensajes (
            id BIGSERIAL PRIMARY KEY,
            usuario_id BIGINT NOT NULL,
            empresa_id BIGINT NOT NULL,
            vacante_id BIGINT NOT NULL DEFAULT 0,
            sender_type VARCHAR(10) NOT NULL CHECK (sender_type IN ('USUARIO', 'EMPRESA')),
            sender_id BIGINT NOT NULL,
            receiver_id BIGINT NOT NULL,
            contenido TEXT NOT NULL,
            fecha_envio TIMESTAMPTZ NOT NULL,
            leido BOOLEAN NOT NULL DEFAULT FALSE,
            seq BIGINT NOT NULL,
            UNIQUE (usuario_id, empresa_id, vacante_id, seq)
        )`,

		`CREATE INDEX IF NOT EXISTS mensajes_unread_idx
            ON mensajes (receiver_id, sender_type, fecha_envio DESC)
            WHERE leido = FALSE`,
	}

	for _, query := range queries {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return errors.Wrap(err, "migration failed")
		}
	}

	return nil
}
