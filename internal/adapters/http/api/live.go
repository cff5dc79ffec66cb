package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/okian/elorank/internal/domain/convergence"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/types"
	"github.com/okian/elorank/pkg/logger"
	"github.com/okian/elorank/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
}

// liveFrame is one websocket message of GET /collections/{id}/live.
type liveFrame struct {
	Type        string           `json:"type"`
	Collection  string           `json:"collection"`
	Convergence float64          `json:"convergence"`
	Percent     int              `json:"percent"`
	Standings   []types.Standing `json:"standings"`
}

// handleLive streams the collection's standings after every change. The
// first frame is the current state; frames in between changes may be
// skipped when the client reads slowly.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if _, err := s.deps.Items(id); err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	metrics.AddWebsocketClients(1)
	defer metrics.AddWebsocketClients(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Holds at most the latest snapshot.
	latest := make(chan model.Snapshot, 1)
	unsubscribe, err := s.deps.Subscribe(ctx, id, func(snap model.Snapshot) {
		select {
		case <-latest:
		default:
		}
		select {
		case latest <- snap:
		default:
		}
	})
	if err != nil {
		s.logger.Warn(ctx, "live subscribe failed", logger.String("collection", id), logger.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	defer unsubscribe()

	go s.readPump(conn, cancel)

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case snap := <-latest:
			if err := s.writeFrame(conn, id, snap); err != nil {
				s.logger.Debug(ctx, "live write failed", logger.String("collection", id), logger.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and cancels the stream when the peer
// goes away or stops answering pings.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	pongWait := 2 * s.pingInterval
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, collection string, snap model.Snapshot) error {
	c := convergence.Estimate(snap, s.ratingScale)
	data, err := json.Marshal(liveFrame{
		Type:        "standings",
		Collection:  collection,
		Convergence: c,
		Percent:     convergence.Percent(c),
		Standings:   types.BuildStandings(snap.Records()),
	})
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
