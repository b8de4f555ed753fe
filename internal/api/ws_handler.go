package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/snaplink/chatsync/internal/timeline"
)

// command is what a connected client sends over the sync socket.
type command struct {
	Action         string `json:"action"` // open | close | send
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Type           string `json:"type,omitempty"`
	TimerSeconds   int    `json:"timer_seconds,omitempty"`
}

// syncHandler runs one sync session per websocket connection. The session
// pushes ordered snapshots, live messages and status changes; the client
// drives conversation focus and sends.
func syncHandler(deps *SyncDeps) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		uid, _ := conn.Locals("user_id").(string)
		if uid == "" {
			_ = conn.Close()
			return
		}

		u := deps.Service.ForUser(uid)
		sub := timeline.NewSubscriber(deps.Opener, deps.Cfg.SetupTimeout, deps.Log)
		sess := timeline.NewSession(uid, u, sub, u, deps.Retry, deps.Log)
		defer sess.Close()

		go writePump(conn, sess, deps)
		readPump(conn, sess, deps)
	}
}

func readPump(conn *websocket.Conn, sess *timeline.Session, deps *SyncDeps) {
	conn.SetReadLimit(deps.Cfg.WS.MaxMessageSizeBytes)
	_ = conn.SetReadDeadline(time.Now().Add(2 * deps.Cfg.PingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * deps.Cfg.PingInterval))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "open":
			if cmd.ConversationID != "" {
				sess.OpenConversation(cmd.ConversationID)
			}
		case "close":
			sess.CloseConversation()
		case "send":
			// Off the read loop so a slow backend cannot stall incoming
			// commands. Failures come back as a send_failed event.
			go func(c command) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_, _ = sess.SendMessage(ctx, c.Content, c.Type, c.TimerSeconds)
			}(cmd)
		}
	}
}

func writePump(conn *websocket.Conn, sess *timeline.Session, deps *SyncDeps) {
	ticker := time.NewTicker(deps.Cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(deps.Cfg.WriteDeadline))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(deps.Cfg.WriteDeadline))
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
