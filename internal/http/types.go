package http

import (
	"io"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/helmd/internal/control"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// DecisionRequest is the request body for POST /api/v1/intents/:id/decision.
type DecisionRequest struct {
	Decision control.Decision `json:"decision"`
	Actor    string           `json:"actor,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
}
