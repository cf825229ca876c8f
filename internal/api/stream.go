package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/service"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	requestWait = 30 * time.Second
	writeWait   = 10 * time.Second
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
}

// originAllowed accepts requests without an Origin header, any origin when
// none are configured or "*" is listed, and otherwise an exact match.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// streamConn serializes writes to one websocket.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(m)
}

// handleStream runs a ledger over a websocket. The client sends one
// LedgerRequest, then receives progress frames and a final result or error
// frame. Closing the socket or sending a cancel frame stops the run at the
// next batch boundary.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	l := log.WithFields(log.Fields{
		"package": "api",
		"func":    "handleStream",
	})

	ws, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		l.Warnf("upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	conn := &streamConn{conn: ws}

	_ = ws.SetReadDeadline(time.Now().Add(requestWait))
	var req LedgerRequest
	if err := ws.ReadJSON(&req); err != nil {
		l.Debugf("no request received: %v", err)
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	input, err := req.Input()
	if err != nil {
		_ = conn.send(Message{Type: MessageTypeError, Timestamp: time.Now().UTC(), Error: err.Error()})
		return
	}

	flag := service.NewCancelFlag()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchClient(ws, flag)

	opts := domain.RunOptions{
		Cancel: flag,
		Progress: func(p domain.Progress) {
			m, err := newMessage(MessageTypeProgress, p.RunID, p)
			if err != nil {
				return
			}
			if err := conn.send(m); err != nil {
				flag.Cancel()
			}
		},
	}

	out, err := s.runner.Run(ctx, input, opts)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			l.WithField("wallet", input.Wallet).Info("run cancelled by client")
		}
		_ = conn.send(Message{Type: MessageTypeError, Timestamp: time.Now().UTC(), Error: err.Error()})
		return
	}

	m, err := newMessage(MessageTypeResult, out.RunID, out)
	if err != nil {
		l.Error(err)
		return
	}
	if err := conn.send(m); err != nil {
		l.Debugf("result not delivered: %v", err)
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// watchClient sets the flag once the client goes away or asks to cancel.
func watchClient(ws *websocket.Conn, flag *service.CancelFlag) {
	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			flag.Cancel()
			return
		}
		if m.Type == MessageTypeCancel {
			flag.Cancel()
			return
		}
	}
}
