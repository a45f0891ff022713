package presence

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parlor/internal/apperror"
	"github.com/keyxmakerx/parlor/internal/middleware"
	"github.com/keyxmakerx/parlor/internal/plugins/auth"
)

// Handler serves the chat page, the presence websocket and the count API.
type Handler struct {
	hub      *Hub
	gate     *auth.Gate
	upgrader websocket.Upgrader
}

// NewHandler creates a presence handler. The upgrader keeps gorilla's
// default same-origin check.
func NewHandler(hub *Hub, gate *auth.Gate) *Handler {
	return &Handler{
		hub:  hub,
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Chat renders the page that opens the presence socket (GET /chat).
func (h *Handler) Chat(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, ChatPage(auth.GetUser(c).Name(), h.hub.Count()))
}

// ServeWS runs the session gate on the handshake and upgrades only
// authenticated requests (GET /ws). A refused handshake is answered
// before any upgrade and logged at info level.
func (h *Handler) ServeWS(c echo.Context) error {
	req := c.Request()

	user, err := h.gate.Authorize(req.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			slog.Info("refused websocket connection",
				slog.String("remote_ip", c.RealIP()),
				slog.String("reason", err.Error()),
			)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   auth.ErrUnauthorized.Type,
				"message": auth.ErrUnauthorized.Message,
			})
		}
		slog.Warn("websocket handshake could not check session", slog.Any("error", err))
		return c.JSON(apperror.SafeCode(err), map[string]string{
			"error":   "store_unavailable",
			"message": apperror.SafeMessage(err),
		})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), req, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		slog.Info("websocket upgrade failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	client := newClient(h.hub, conn, user.ID, user.Name())
	if _, err := h.hub.Join(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return nil
	}
	slog.Info("successful websocket connection", slog.String("user_id", user.ID))

	go client.writePump()
	go client.readPump()
	return nil
}

// CountResponse is the body of GET /api/v1/presence.
type CountResponse struct {
	CurrentCount int64 `json:"currentCount"`
}

// Count returns the number of connected users.
func (h *Handler) Count(c echo.Context) error {
	return c.JSON(http.StatusOK, CountResponse{CurrentCount: h.hub.Count()})
}
