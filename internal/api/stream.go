package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/tilecity/internal/agents"
	"github.com/talgya/tilecity/internal/city"
	"github.com/talgya/tilecity/internal/engine"
)

const maxStreamConns = 16

// Stream message types.
const (
	msgState   = "state"
	msgFrame   = "frame"
	msgOutcome = "outcome"
	msgLimited = "limited"
	msgClick   = "click"
	msgTool    = "tool"
)

// serverMsg is pushed to stream clients.
type serverMsg struct {
	Type    string           `json:"type"`
	Cue     engine.Cue       `json:"cue,omitempty"`
	State   *engine.Snapshot `json:"state,omitempty"`
	Frame   *agents.Frame    `json:"frame,omitempty"`
	Outcome *engine.Outcome  `json:"outcome,omitempty"`

	RetryAfter int `json:"retryAfter,omitempty"`
}

// clientMsg is sent by stream clients.
type clientMsg struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Tool string `json:"tool"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := s.streamConns.Add(1)
	defer s.streamConns.Add(-1)
	if current > maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ip := clientIP(r)
	subID, updates := s.Store.Subscribe()
	defer s.Store.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan serverMsg, 8)
	writeErr := make(chan error, 1)
	go func() {
		err := s.streamWriter(ctx, conn, updates, replies)
		_ = conn.Close() // unblocks the reader
		writeErr <- err
	}()

	// Reader loop: player commands.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg clientMsg
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		reply, ok := s.handleClientMsg(ip, msg)
		if !ok {
			continue
		}
		select {
		case replies <- reply:
		default:
		}
	}
	cancel()
	<-writeErr
	slog.Info("stream client disconnected", "sub_id", subID)
}

// handleClientMsg applies a player command. Commands share the per-IP budget
// of the POST endpoints.
func (s *Server) handleClientMsg(ip string, msg clientMsg) (serverMsg, bool) {
	if msg.Type != msgClick && msg.Type != msgTool {
		return serverMsg{}, false
	}
	if s.limiter != nil && !s.limiter.Allow(ip) {
		return serverMsg{Type: msgLimited, RetryAfter: s.limiter.RetryAfter(ip)}, true
	}
	switch msg.Type {
	case msgClick:
		o := s.Store.PlaceBuilding(msg.X, msg.Y)
		return serverMsg{Type: msgOutcome, Outcome: &o}, true
	case msgTool:
		b, err := city.ParseBuildingType(msg.Tool)
		if err != nil {
			return serverMsg{}, false
		}
		s.Store.SelectTool(b)
	}
	return serverMsg{}, false
}

// streamWriter owns all writes to conn.
func (s *Server) streamWriter(ctx context.Context, conn *websocket.Conn, updates <-chan engine.Update, replies <-chan serverMsg) error {
	snap := s.Store.Snapshot()
	if err := writeWS(conn, serverMsg{Type: msgState, State: &snap}); err != nil {
		return err
	}

	frames := time.NewTicker(s.FramePush)
	defer frames.Stop()
	var lastSeq uint64

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			snap := u.Snapshot
			if err := writeWS(conn, serverMsg{Type: msgState, Cue: u.Cue, State: &snap}); err != nil {
				return err
			}
		case m := <-replies:
			if err := writeWS(conn, m); err != nil {
				return err
			}
		case <-frames.C:
			if s.Field == nil {
				continue
			}
			f := s.Field.Latest()
			if f.Seq == lastSeq {
				continue
			}
			lastSeq = f.Seq
			if err := writeWS(conn, serverMsg{Type: msgFrame, Frame: &f}); err != nil {
				return err
			}
		}
	}
}

func writeWS(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
