package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/leebenson/conform"
	"github.com/pkg/errors"

	"mensajeria/internal/participant"
)

// ID accepts a JSON number or a numeric string; the web client sends both.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*id = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return errors.Errorf("%s no es un identificador numérico", b)
	}
	*id = ID(n)
	return nil
}

type sendRequest struct {
	Contenido  string `json:"contenido" validate:"required"`
	SenderType string `json:"senderType" conform:"trim,upper" validate:"required,oneof=USUARIO EMPRESA"`
	SenderID   ID     `json:"senderId" validate:"gt=0"`
	ReceiverID ID     `json:"receiverId" validate:"gt=0"`
	VacanteID  ID     `json:"vacanteId" validate:"gte=0"`
}

func (r *sendRequest) toNewMessage() NewMessage {
	return NewMessage{
		SenderType: participant.Tipo(r.SenderType),
		SenderID:   int64(r.SenderID),
		ReceiverID: int64(r.ReceiverID),
		VacanteID:  int64(r.VacanteID),
		Contenido:  r.Contenido,
	}
}

func (r *sendRequest) conform() error {
	return conform.Strings(r)
}

type statusRequest struct {
	UsuarioID ID    `json:"usuarioId" validate:"gt=0"`
	VacanteID ID    `json:"vacanteId" validate:"gte=0"`
	Activo    *bool `json:"activo" validate:"required"`
}

// conformer is implemented by requests with conform tags.
type conformer interface {
	conform() error
}

// maxBodySize bounds request bodies well above MaxContentLength runes.
const maxBodySize = 64 << 10

// decodeBody reads, normalises and validates a JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.Wrapf(ErrBadRequest, "el cuerpo supera %d bytes", maxBodySize)
		}
		return errors.Wrapf(ErrBadRequest, "cuerpo JSON inválido: %v", err)
	}
	if c, ok := v.(conformer); ok {
		if err := c.conform(); err != nil {
			return errors.Wrapf(ErrBadRequest, "cuerpo JSON inválido: %v", err)
		}
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return errors.Wrapf(ErrValidation, "campos inválidos: %s", strings.Join(fields, ", "))
		}
		return errors.Wrap(ErrValidation, err.Error())
	}
	return nil
}

// pathID parses a positive integer route parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(ErrBadRequest, "%s debe ser un entero positivo, recibido %q", name, raw)
	}
	return id, nil
}

// optionalPathID is pathID for parameters that may be absent.
func optionalPathID(r *http.Request, name string) (int64, error) {
	if chi.URLParam(r, name) == "" {
		return 0, nil
	}
	return pathID(r, name)
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Wrapf(ErrBadRequest, "limit debe ser un entero positivo, recibido %q", raw)
	}
	return clampLimit(n), nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
