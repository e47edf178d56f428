package realitylog

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/realitylog/realitylog/pkg/auth"
	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/timecode"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleWebSocket streams full collection snapshots and the caller's console
// timecode. Each snapshot replaces the previous one for its type.
func (a *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	u := identity(r.Context())
	if u == nil {
		fail(w, r, auth.ErrUnauthenticated)
		return
	}
	token := sessionToken(r.Context())
	console, err := a.consoles.Get(token)
	if err != nil {
		fail(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		hlog.FromRequest(r).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	logger := hlog.FromRequest(r).With().Str("component", "ws").Logger()
	logger.Debug().Str("user", u.ID.String()).Msg("websocket connected")

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	pings := make(chan struct{}, 1)
	go a.wsReadPump(conn, cancel, pings, logger)
	a.wsWritePump(ctx, conn, token, console.Generator().Subscribe, pings, logger)
	logger.Debug().Str("user", u.ID.String()).Msg("websocket closed")
}

// wsReadPump consumes client frames until the connection fails. Client pings
// are answered by the write pump; everything else is ignored.
func (a *App) wsReadPump(conn *websocket.Conn, cancel context.CancelFunc, pings chan<- struct{}, logger zerolog.Logger) {
	defer cancel()
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var msg client.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if msg.Type == client.MessagePing {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}

// wsWritePump is the only writer on conn.
func (a *App) wsWritePump(
	ctx context.Context,
	conn *websocket.Conn,
	token string,
	subscribeTimecode func(int) (<-chan timecode.Reading, func()),
	pings <-chan struct{},
	logger zerolog.Logger,
) {
	defer conn.Close()

	participants, stopP := a.hub.Participants.Subscribe(1)
	defer stopP()
	locations, stopL := a.hub.Locations.Subscribe(1)
	defer stopL()
	actions, stopA := a.hub.ActionCategories.Subscribe(1)
	defer stopA()
	tags, stopT := a.hub.Tags.Subscribe(1)
	defer stopT()
	entries, stopE := a.hub.LogEntries.Subscribe(1)
	defer stopE()
	timecodes, stopTC := subscribeTimecode(1)
	defer stopTC()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	send := func(typ string, payload any) bool {
		msg := client.Message{Type: typ}
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				logger.Error().Err(err).Str("type", typ).Msg("encode websocket message")
				return false
			}
			msg.Payload = data
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug().Err(err).Str("type", typ).Msg("websocket write")
			return false
		}
		return true
	}

	for {
		var ok bool
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case s, open := <-participants:
			ok = open && send(client.MessageParticipants, s)
		case s, open := <-locations:
			ok = open && send(client.MessageLocations, s)
		case s, open := <-actions:
			ok = open && send(client.MessageActionCategories, s)
		case s, open := <-tags:
			ok = open && send(client.MessageTags, s)
		case s, open := <-entries:
			ok = open && send(client.MessageLogEntries, s)
		case tc, open := <-timecodes:
			ok = open && send(client.MessageTimecode, tc)
		case <-pings:
			ok = send(client.MessagePong, nil)
		case <-ticker.C:
			if _, valid := a.auth.Sessions().Get(token); !valid {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended"),
					time.Now().Add(wsWriteWait))
				return
			}
			ok = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)) == nil
		}
		if !ok {
			return
		}
	}
}
