package chat

import (
	"context"
	"database/sql/driver"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"mensajeria/internal/participant"
)

// Error kinds. Callers wrap them with a human readable reason and classify
// with errors.Is.
var (
	ErrBadRequest = errors.New("BadRequest")
	ErrValidation = errors.New("ValidationError")
	ErrGateClosed = errors.New("GateClosedError")
	ErrNotFound   = errors.New("NotFoundError")
	ErrForbidden  = errors.New("Forbidden")
	ErrTransient  = errors.New("TransientError")
)

type errorResponse struct {
	Error   string `json:"error"`
	Mensaje string `json:"mensaje"`
}

// classify maps an error to its HTTP status and public code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, ErrBadRequest.Error()
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, ErrValidation.Error()
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrForbidden.Error()
	case errors.Is(err, ErrNotFound), errors.Is(err, participant.ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	case errors.Is(err, ErrGateClosed):
		return http.StatusConflict, ErrGateClosed.Error()
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable, ErrTransient.Error()
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

// publicMessage drops the kind suffix pkg/errors appends ("reason: Kind").
func publicMessage(err error, code string) string {
	msg := err.Error()
	suffix := ": " + code
	if len(msg) > len(suffix) && msg[len(msg)-len(suffix):] == suffix {
		return msg[:len(msg)-len(suffix)]
	}
	if code == "InternalError" {
		return "error interno"
	}
	return msg
}

// storageError marks connection level failures as transient so clients know
// the next poll may succeed.
func storageError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "53", "57", "40":
			return errors.Wrapf(ErrTransient, "%s: %s", op, pgErr.Message)
		}
		return errors.Wrap(err, op)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return errors.Wrapf(ErrTransient, "%s: %v", op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.Wrapf(ErrTransient, "%s: %v", op, err)
	}
	return errors.Wrap(err, op)
}

// directoryUnavailable hides the cause from clients; it only reaches the log.
func directoryUnavailable(err error) error {
	log.Errorf("participant directory: %v", err)
	return errors.Wrap(ErrTransient, "directorio no disponible")
}
