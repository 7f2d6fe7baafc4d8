package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/internal/httpx"
)

type healthStatus struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Environment string  `json:"environment"`
	Store       string  `json:"store"`
}

// health answers 503 when the credential store does not respond.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	out := healthStatus{
		Status:      "healthy",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Uptime:      time.Since(s.started).Seconds(),
		Environment: s.cfg.Environment,
		Store:       "up",
	}
	status := http.StatusOK
	if err := s.engine.Ping(ctx); err != nil {
		s.logger.Warn("health check: store unreachable", zap.Error(err))
		out.Status = "unhealthy"
		out.Store = "down"
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, httpx.Envelope{Success: status == http.StatusOK, Data: out})
}
