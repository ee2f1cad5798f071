package realtime

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oggyb/venue-match/internal/auth"
	svcErr "github.com/oggyb/venue-match/internal/errors"
)

// Handler authenticates and upgrades WebSocket requests.
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	tokens     *auth.TokenService
	limits     Limits
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewHandler builds the upgrade handler. An empty origin list accepts any
// origin.
func NewHandler(hub *Hub, dispatcher *Dispatcher, tokens *auth.TokenService, limits Limits, allowedOrigins []string, log zerolog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		tokens:     tokens,
		limits:     limits,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// ServeWS validates the bearer token (Authorization header or "token" query
// parameter) before upgrading; a bad token never reaches the event loop.
func (h *Handler) ServeWS(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, svcErr.EventPayload{Message: "missing bearer token", ErrorCode: svcErr.CodeUnauthenticated})
		return
	}
	userID, err := h.tokens.Validate(token)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("ws token rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, svcErr.EventPayload{Message: "invalid bearer token", ErrorCode: svcErr.CodeUnauthenticated})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user", userID).Msg("ws upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, userID, h.limits, h.log)
	h.hub.Register(client)
	h.log.Info().Str("user", userID).Str("remote", c.ClientIP()).Msg("ws connected")

	go client.WritePump()
	client.ReadPump(context.Background(), func(ctx context.Context, cl *Client, raw []byte) {
		h.dispatcher.Handle(ctx, cl, raw)
	})

	// only the socket that holds a venue ends that venue stay, and only when
	// no other local socket of the user still holds it
	vs, inVenue := client.VenueSession()
	if h.hub.Unregister(client) && inVenue && !h.hub.venueHeldElsewhere(client, vs.VenueID) {
		h.dispatcher.Disconnect(context.Background(), userID, vs.VenueID)
	}
	h.log.Info().Str("user", userID).Msg("ws disconnected")
}
