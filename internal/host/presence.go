package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAlreadyOnline indicates a second session tried to join under a name in use.
var ErrAlreadyOnline = errors.New("player already online")

func playerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Join brings name online with sink as its session and runs the join
// listeners. Must run on the main loop.
func (r *Runtime) Join(ctx context.Context, name string, sink Sink) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("joining: empty player name")
	}

	r.mu.Lock()
	if _, ok := r.players[playerKey(name)]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyOnline, name)
	}
	r.players[playerKey(name)] = &player{name: name, gameMode: "survival", sink: sink}
	listeners := append([]JoinListener(nil), r.listeners...)
	r.mu.Unlock()

	r.log.Info("player joined", "player", name, "online", r.OnlineCount())

	for _, l := range listeners {
		l(ctx, name)
	}
	return nil
}

// Leave takes name offline. Must run on the main loop.
func (r *Runtime) Leave(name string) {
	r.mu.Lock()
	_, ok := r.players[playerKey(name)]
	delete(r.players, playerKey(name))
	r.mu.Unlock()

	if ok {
		r.log.Info("player left", "player", name, "online", r.OnlineCount())
	}
}

// IsOnline reports whether a player with exactly this name, ignoring case,
// is online. Safe from any goroutine.
func (r *Runtime) IsOnline(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[playerKey(name)]
	return ok
}

// OnlineCount returns the number of online players. Safe from any goroutine.
func (r *Runtime) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Players returns the online players' names, sorted.
func (r *Runtime) Players() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		names = append(names, p.name)
	}
	sort.Strings(names)
	return names
}

// GameMode returns the player's game mode, or "" if offline.
func (r *Runtime) GameMode(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.players[playerKey(name)]; ok {
		return p.gameMode
	}
	return ""
}

// SetGameMode changes an online player's game mode.
func (r *Runtime) SetGameMode(name, mode string) error {
	r.mu.Lock()
	p, ok := r.players[playerKey(name)]
	if ok {
		p.gameMode = mode
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerOffline, name)
	}
	return r.Message(name, "Your game mode has been updated to "+mode)
}

// Message sends msg to the player's session.
func (r *Runtime) Message(name, msg string) error {
	r.mu.RLock()
	p, ok := r.players[playerKey(name)]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerOffline, name)
	}
	if p.sink != nil {
		p.sink.Send(msg)
	}
	return nil
}

// Broadcast sends msg to every online player.
func (r *Runtime) Broadcast(msg string) {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.players))
	for _, p := range r.players {
		if p.sink != nil {
			sinks = append(sinks, p.sink)
		}
	}
	r.mu.RUnlock()

	for _, s := range sinks {
		s.Send(msg)
	}
}
