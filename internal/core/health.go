package core

import (
	"context"
	"net/http"
	"time"
)

// healthResponse is the health check payload.
type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}

// HandleHealth reports process liveness and database reachability.
// A failing database probe returns 503 so load balancers stop routing
// to the instance, but the process itself stays up.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Service:  s.Config.Service,
		Database: "ok",
	}
	status := http.StatusOK

	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	JSON(w, r, status, resp)
}
