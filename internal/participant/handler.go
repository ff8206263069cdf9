package participant

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

// GetParticipant serves the display name chat headers show for the other side.
func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	tipo := Tipo(strings.ToUpper(chi.URLParam(r, "tipo")))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if !tipo.Valid() || err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "BadRequest",
			"mensaje": "tipo debe ser USUARIO o EMPRESA e id un entero positivo",
		})
		return
	}

	p, err := h.Service.Lookup(r.Context(), tipo, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":   "NotFoundError",
				"mensaje": "participante no encontrado",
			})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "TransientError",
			"mensaje": "directorio no disponible, reintente",
		})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
