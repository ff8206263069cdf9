package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jessevdk/go-flags"

	"mensajeria/internal/participant"
)

// Run the server with MENSAJERIA_STORE=memory: the ids below are synthetic
// and only an open directory accepts them.
type Options struct {
	BaseURL  string        `long:"base-url" default:"http://localhost:8080" description:"server base url"`
	Secret   string        `long:"secret" env:"MENSAJERIA_JWT_SECRET" required:"true" description:"token signing secret"`
	Pairs    int           `long:"pairs" default:"50" description:"candidate/company pairs"`
	Messages int           `long:"messages" default:"20" description:"messages per side"`
	Poll     time.Duration `long:"poll" default:"3s" description:"counter poll interval"`
	Watch    bool          `long:"watch" description:"hold a websocket per candidate and count pushes"`
}

type stats struct {
	sent, rejected, polls, pushes, failures int64
}

var (
	opts   Options
	totals stats
	client = &http.Client{Timeout: 10 * time.Second}
)

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	log.Printf("🔥 STARTING LOAD TEST: %d pairs, %d messages per side...", opts.Pairs, opts.Messages)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < opts.Pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d rejected=%d polls=%d pushes=%d failures=%d",
		time.Since(start).Round(time.Millisecond),
		atomic.LoadInt64(&totals.sent), atomic.LoadInt64(&totals.rejected),
		atomic.LoadInt64(&totals.polls), atomic.LoadInt64(&totals.pushes),
		atomic.LoadInt64(&totals.failures))
}

// runPair plays one conversation: both sides talk while the candidate polls,
// then the company closes the chat and the candidate is refused.
func runPair(pairID int) {
	svc := participant.NewService(nil, opts.Secret)
	candidate := participant.Participant{ID: int64(1000 + pairID), Tipo: participant.Usuario}
	company := participant.Participant{ID: int64(5000 + pairID), Tipo: participant.Empresa}
	vacanteID := int64(pairID + 1)

	tokenC, err := svc.IssueToken(candidate, time.Hour)
	if err != nil {
		log.Fatalf("❌ token: %v", err)
	}
	tokenE, err := svc.IssueToken(company, time.Hour)
	if err != nil {
		log.Fatalf("❌ token: %v", err)
	}

	done := make(chan struct{})
	if opts.Watch {
		go watch(tokenC, done)
	}
	go poll(tokenC, candidate.ID, done)

	var sides sync.WaitGroup
	sides.Add(2)
	go spam(&sides, tokenC, candidate, company.ID, vacanteID)
	go spam(&sides, tokenE, company, candidate.ID, vacanteID)
	sides.Wait()

	call(tokenC, http.MethodPut, fmt.Sprintf("/mensajeria/leer/%d/%d", candidate.ID, company.ID), nil, nil)

	call(tokenE, http.MethodPatch, "/mensajeria/status-chat", map[string]interface{}{
		"usuarioId": candidate.ID, "vacanteId": vacanteID, "activo": false,
	}, nil)
	status := call(tokenC, http.MethodPost, "/mensajeria/enviar", message(candidate, company.ID, vacanteID, "después del cierre"), nil)
	if status == http.StatusConflict {
		atomic.AddInt64(&totals.rejected, 1)
	} else {
		log.Printf("❌ pair %d: closed chat accepted a message (status %d)", pairID, status)
		atomic.AddInt64(&totals.failures, 1)
	}

	close(done)
}

func spam(wg *sync.WaitGroup, token string, from participant.Participant, to, vacanteID int64) {
	defer wg.Done()
	for i := 0; i < opts.Messages; i++ {
		body := message(from, to, vacanteID, fmt.Sprintf("LoadTest msg %d from %s", i, from.Ref()))
		if status := call(token, http.MethodPost, "/mensajeria/enviar", body, nil); status == http.StatusCreated {
			atomic.AddInt64(&totals.sent, 1)
		}
		// Simulate a person typing rather than a tight loop.
		time.Sleep(10 * time.Millisecond)
	}
}

func poll(token string, candidateID int64, done <-chan struct{}) {
	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var out struct {
				UnreadMessages int `json:"unreadMessages"`
			}
			if call(token, http.MethodGet, fmt.Sprintf("/mensajeria/contadores/%d", candidateID), nil, &out) == http.StatusOK {
				atomic.AddInt64(&totals.polls, 1)
			}
		}
	}
}

func watch(token string, done <-chan struct{}) {
	wsURL := strings.Replace(opts.BaseURL, "http", "ws", 1) + "/mensajeria/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("❌ WS connect failed: %v", err)
		atomic.AddInt64(&totals.failures, 1)
		return
	}
	defer conn.Close()

	go func() {
		<-done
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		atomic.AddInt64(&totals.pushes, 1)
	}
}

func message(from participant.Participant, to, vacanteID int64, text string) map[string]interface{} {
	return map[string]interface{}{
		"contenido":  text,
		"senderType": from.Tipo,
		"senderId":   from.ID,
		"receiverId": to,
		"vacanteId":  vacanteID,
	}
}

// call returns the status code, or 0 when the request never completed.
func call(token, method, path string, body, out interface{}) int {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, opts.BaseURL+path, &buf)
	if err != nil {
		atomic.AddInt64(&totals.failures, 1)
		return 0
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("❌ %s %s: %v", method, path, err)
		atomic.AddInt64(&totals.failures, 1)
		return 0
	}
	defer resp.Body.Close()

	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}
