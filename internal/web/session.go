package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"currency_go/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	maxMessage   = 4096
)

// clientMessage is an inbound UI event
type clientMessage struct {
	Type  string `json:"type"` // select_from, select_to, input_from, input_to, toggle_favorite
	Value string `json:"value"`
}

// panelView is the outbound panel state with flag files mapped to URLs
type panelView struct {
	Type    string             `json:"type"`
	Session string             `json:"session"`
	State   service.PanelState `json:"state"`
	Error   string             `json:"error,omitempty"`
}

type session struct {
	id      uuid.UUID
	conn    *websocket.Conn
	panel   *service.Panel
	writeMu sync.Mutex
	logger  *slog.Logger
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		s.logger.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	sess := &session{
		id:   uuid.New(),
		conn: conn,
	}
	sess.logger = s.logger.With(slog.String("session", sess.id.String()))

	opts := s.panelOpts
	opts.OnChange = func(state service.PanelState) {
		sess.sendState(state, nil)
	}
	sess.panel = service.NewPanel(r.Context(), s.rates, opts)

	s.addSession(sess)
	defer func() {
		s.removeSession(sess)
		sess.panel.Close()
		conn.Close()
		sess.logger.Debug("Session closed")
	}()

	sess.logger.Debug("Session opened")
	sess.sendState(sess.panel.State(), nil)

	done := make(chan struct{})
	defer close(done)
	go sess.pingLoop(done)

	sess.readLoop()
}

func (sess *session) readLoop() {
	sess.conn.SetReadLimit(maxMessage)
	sess.conn.SetReadDeadline(time.Now().Add(readTimeout))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg clientMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn("WebSocket read failed", slog.Any("error", err))
			}
			return
		}

		err := sess.dispatch(msg)
		sess.sendState(sess.panel.State(), err)
	}
}

// dispatch applies one UI event to the session's panel
func (sess *session) dispatch(msg clientMessage) error {
	switch msg.Type {
	case "select_from":
		return sess.panel.SelectFrom(msg.Value)
	case "select_to":
		return sess.panel.SelectTo(msg.Value)
	case "toggle_favorite":
		_, err := sess.panel.ToggleFavorite(msg.Value)
		return err
	case "input_from", "input_to":
		amount, err := parseAmount(msg.Value)
		if err != nil {
			return err
		}
		if msg.Type == "input_from" {
			return sess.panel.InputFrom(amount)
		}
		return sess.panel.InputTo(amount)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (sess *session) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sess.writeMu.Lock()
			err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			sess.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (sess *session) sendState(state service.PanelState, cause error) {
	view := panelView{
		Type:    "state",
		Session: sess.id.String(),
		State:   state,
	}
	if state.FromFlag != "" {
		view.State.FromFlag = "/flags/" + state.FromCode
	}
	if state.ToFlag != "" {
		view.State.ToFlag = "/flags/" + state.ToCode
	}
	if cause != nil {
		view.Error = cause.Error()
	}

	data, err := json.Marshal(view)
	if err != nil {
		sess.logger.Error("Failed to marshal panel state", slog.Any("error", err))
		return
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		sess.logger.Debug("WebSocket write failed", slog.Any("error", err))
	}
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
