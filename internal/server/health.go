package server

import "net/http"

type healthResponse struct {
	Status           string `json:"status"`
	Server           string `json:"server"`
	OnlinePlayers    int    `json:"onlinePlayers"`
	Version          string `json:"version"`
	PendingQueueSize int    `json:"pendingQueueSize"`
	QueuedPlayers    int    `json:"queuedPlayers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status:           "healthy",
		Server:           s.host.Name(),
		OnlinePlayers:    s.host.OnlineCount(),
		Version:          s.version,
		PendingQueueSize: s.queue.TotalItems(),
		QueuedPlayers:    s.queue.Recipients(),
	}
	s.log.Debug("health check", "online", resp.OnlinePlayers, "pending", resp.PendingQueueSize)
	writeJSON(w, http.StatusOK, resp)
}
