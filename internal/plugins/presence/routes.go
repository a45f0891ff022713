package presence

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the presence routes. The websocket route runs the
// gate itself so a refused handshake never reaches the redirecting
// middleware.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/chat", h.Chat, h.gate.RequireAuth())
	e.GET("/ws", h.ServeWS)

	api := e.Group("/api/v1", h.gate.RequireAuth())
	api.GET("/presence", h.Count)
}
