package chat

import (
	"time"

	"mensajeria/internal/participant"
)

// ---------------------------------------------
// Database & API Models
// ---------------------------------------------

// Message is immutable once stored, except for Leido which only moves to true.
type Message struct {
	ID         int64            `json:"id"`
	Contenido  string           `json:"contenido"`
	SenderType participant.Tipo `json:"senderType"`
	SenderID   int64            `json:"senderId"`
	ReceiverID int64            `json:"receiverId"`
	VacanteID  int64            `json:"vacanteId,omitempty"` // 0 = general conversation
	FechaEnvio time.Time        `json:"fechaEnvio"`
	Leido      bool             `json:"leido"`
	Seq        int64            `json:"seq"` // per conversation key
}

func (m *Message) Sender() participant.Ref {
	return participant.Ref{Tipo: m.SenderType, ID: m.SenderID}
}

func (m *Message) Receiver() participant.Ref {
	return participant.Ref{Tipo: m.SenderType.Counterpart(), ID: m.ReceiverID}
}

func (m *Message) Key() Key {
	return KeyFor(m.SenderType, m.SenderID, m.ReceiverID, m.VacanteID)
}

// NewMessage is what a sender hands to the store.
type NewMessage struct {
	SenderType participant.Tipo
	SenderID   int64
	ReceiverID int64
	VacanteID  int64
	Contenido  string
}

func (n *NewMessage) Key() Key {
	return KeyFor(n.SenderType, n.SenderID, n.ReceiverID, n.VacanteID)
}

// Key scopes a conversation and its gate.
type Key struct {
	CandidateID int64
	CompanyID   int64
	VacanteID   int64
}

func KeyFor(senderType participant.Tipo, senderID, receiverID, vacanteID int64) Key {
	if senderType == participant.Empresa {
		return Key{CandidateID: receiverID, CompanyID: senderID, VacanteID: vacanteID}
	}
	return Key{CandidateID: senderID, CompanyID: receiverID, VacanteID: vacanteID}
}

type Gate struct {
	CandidateID int64     `json:"usuarioId"`
	CompanyID   int64     `json:"empresaId"`
	VacanteID   int64     `json:"vacanteId,omitempty"`
	Activo      bool      `json:"activo"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (g *Gate) Key() Key {
	return Key{CandidateID: g.CandidateID, CompanyID: g.CompanyID, VacanteID: g.VacanteID}
}

// defaultGate is what an unset key reports.
func defaultGate(k Key) *Gate {
	return &Gate{CandidateID: k.CandidateID, CompanyID: k.CompanyID, VacanteID: k.VacanteID, Activo: true}
}

// HistoryQuery selects the messages between a candidate and a company. A zero
// VacanteID returns every conversation the pair has.
type HistoryQuery struct {
	CandidateID int64
	CompanyID   int64
	VacanteID   int64
}

func (q HistoryQuery) Key() Key {
	return Key{CandidateID: q.CandidateID, CompanyID: q.CompanyID, VacanteID: q.VacanteID}
}

func (q HistoryQuery) Scoped() bool {
	return q.VacanteID != 0
}

type History struct {
	Mensajes   []*Message `json:"mensajes"`
	ChatActivo bool       `json:"chatActivo"`
}

// UnreadStats is what the counter engine needs from a single scan.
type UnreadStats struct {
	Messages      int
	Conversations int
}

// DigestEntry is the display summary behind dropdowns and toasts.
type DigestEntry struct {
	MessageID   int64            `json:"messageId"`
	SenderID    int64            `json:"senderId"`
	SenderType  participant.Tipo `json:"senderType"`
	SenderName  string           `json:"senderName"`
	PreviewText string           `json:"previewText"`
	VacanteID   int64            `json:"vacanteId,omitempty"`
	FechaEnvio  time.Time        `json:"fechaEnvio"`
}

type Summary struct {
	UnreadMessages      int           `json:"unreadMessages"`
	UnreadNotifications int           `json:"unreadNotifications"`
	UltimosMensajes     []DigestEntry `json:"ultimosMensajes"`
}

// ---------------------------------------------
// Push Models
// ---------------------------------------------

const (
	EventNewMessage = "mensaje.nuevo"
	EventRead       = "mensajes.leidos"
	EventGate       = "chat.estado"
)

// Event is pushed to a single participant's channel.
type Event struct {
	ID       string           `json:"id"`
	Tipo     string           `json:"tipo"`
	Mensaje  *Message         `json:"mensaje,omitempty"`
	Chat     *Gate            `json:"chat,omitempty"`
	Lector   *participant.Ref `json:"lector,omitempty"`
	Marcados int              `json:"marcados,omitempty"`
	Fecha    time.Time        `json:"fecha"`
}
