package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/buildtall-systems/storebridge/internal/db"
)

const sessionQueue = 32

// session is a connected player. Messages from the host are queued and
// written by a single goroutine.
type session struct {
	out chan string
}

func (s *session) Send(msg string) {
	select {
	case s.out <- msg:
	default:
		// Slow client; the message is dropped rather than stalling the host.
	}
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "Missing player name")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "player", name, "error", err)
		return
	}
	defer conn.Close()

	sess := &session{out: make(chan string, sessionQueue)}
	if err := s.join(context.Background(), name, sess); err != nil {
		s.log.Warn("player join rejected", "player", name, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second))
		return
	}
	defer s.leave(name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Writer goroutine.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sess.out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if strings.EqualFold(strings.TrimSpace(string(msg)), "inventory") {
			s.sendInventory(ctx, name, sess)
		}
	}
}

func (s *Server) join(ctx context.Context, name string, sess *session) error {
	errCh := make(chan error, 1)
	if err := s.host.Do(ctx, func(ctx context.Context) {
		errCh <- s.host.Join(ctx, name, sess)
	}); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) leave(name string) {
	if err := s.host.Do(context.Background(), func(context.Context) {
		s.host.Leave(name)
	}); err != nil {
		s.log.Debug("leave after host stopped", "player", name, "error", err)
	}
}

func (s *Server) sendInventory(ctx context.Context, name string, sess *session) {
	type reply struct {
		items []db.InventoryItem
		err   error
	}
	ch := make(chan reply, 1)
	if err := s.host.Do(ctx, func(ctx context.Context) {
		items, err := s.host.Inventory(ctx, name)
		ch <- reply{items, err}
	}); err != nil {
		return
	}

	rep := <-ch
	switch {
	case rep.err != nil:
		s.log.Error("reading inventory", "player", name, "error", rep.err)
		sess.Send("Could not read your inventory")
	case len(rep.items) == 0:
		sess.Send("Your inventory is empty")
	default:
		parts := make([]string, 0, len(rep.items))
		for _, it := range rep.items {
			parts = append(parts, fmt.Sprintf("%dx %s", it.Amount, it.Material))
		}
		sess.Send("Inventory: " + strings.Join(parts, ", "))
	}
}
