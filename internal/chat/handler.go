package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	myMiddleware "mensajeria/internal/middleware"
	"mensajeria/internal/participant"
)

type Handler struct {
	service     *Service
	hub         *Hub
	validate    *validator.Validate
	upgrader    websocket.Upgrader
	digestLimit int
}

// NewHandler wires the delivery API. checkOrigin guards websocket upgrades;
// nil accepts same-origin requests only.
func NewHandler(service *Service, hub *Hub, digestLimit int, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		service:     service,
		hub:         hub,
		validate:    newValidator(),
		upgrader:    newUpgrader(checkOrigin),
		digestLimit: clampLimit(digestLimit),
	}
}

// Routes mounts the /mensajeria endpoints. Callers must install the auth
// middleware first. mw applies to every route except the websocket.
func (h *Handler) Routes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(mw...)
		r.Get("/historial/{userId}/{counterpartId}", h.GetHistory)
		r.Get("/historial/{userId}/{counterpartId}/{vacanteId}", h.GetHistory)
		r.Post("/enviar", h.Send)
		r.Put("/leer/{userId}/{counterpartId}", h.MarkRead)
		r.Patch("/status-chat", h.SetChatStatus)
		r.Get("/contadores/{userId}", h.GetCounters)
		r.Get("/contadores-empresa/{empresaId}", h.GetCompanyCounters)
		r.Get("/resumen/{userId}", h.GetSummary)
	})
	r.Get("/ws", h.ServeWs)
}

// GetHistory: the first id is the candidate, the second the company.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	candidateID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}
	companyID, err := pathID(r, "counterpartId")
	if err != nil {
		writeError(w, err)
		return
	}
	vacanteID, err := optionalPathID(r, "vacanteId")
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := h.service.History(r.Context(), caller, HistoryQuery{
		CandidateID: candidateID,
		CompanyID:   companyID,
		VacanteID:   vacanteID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := decodeBody(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.service.Send(r.Context(), caller, req.toNewMessage())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead: the first id is the reader, who must be the caller.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	readerID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}
	counterpartID, err := pathID(r, "counterpartId")
	if err != nil {
		writeError(w, err)
		return
	}

	n, err := h.service.MarkRead(r.Context(), caller, readerID, counterpartID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marcados": n})
}

func (h *Handler) SetChatStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeBody(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	gate, err := h.service.SetGate(r.Context(), caller, int64(req.UsuarioID), int64(req.VacanteID), *req.Activo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gate)
}

// GetCounters is the candidate side dropdown.
func (h *Handler) GetCounters(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	h.summary(w, r, caller, participant.Usuario, func(s *Summary) interface{} {
		return s
	})
}

// GetCompanyCounters is the company side badge.
func (h *Handler) GetCompanyCounters(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	empresaID, err := pathID(r, "empresaId")
	if err != nil {
		writeError(w, err)
		return
	}

	n, err := h.service.UnreadCount(r.Context(), caller, participant.Ref{Tipo: participant.Empresa, ID: empresaID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": n})
}

// GetSummary works for either side; the side comes from the caller.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	h.summary(w, r, caller, caller.Tipo, func(s *Summary) interface{} {
		return map[string]interface{}{
			"count":    s.UnreadMessages,
			"messages": s.UltimosMensajes,
		}
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request, caller *participant.Participant, tipo participant.Tipo, shape func(*Summary) interface{}) {
	id, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryLimit(r, h.digestLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.service.Summary(r.Context(), caller, participant.Ref{Tipo: tipo, ID: id}, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shape(summary))
}

// ServeWs upgrades to the push channel of the caller.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("websocket upgrade for %s: %v", caller.Ref(), err)
		return
	}

	client := NewClient(h.hub, conn, caller.Ref())
	if !h.hub.Attach(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*participant.Participant, bool) {
	caller, ok := myMiddleware.Caller(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Mensaje: "falta la identidad del solicitante"})
		return nil, false
	}
	return caller, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: code, Mensaje: publicMessage(err, code)})
}
