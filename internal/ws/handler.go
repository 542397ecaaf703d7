package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/service"
)

var errMissingToken = errors.New("missing bearer token")

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts requests without an Origin header (native
// clients) and browser origins on the allow-list. "*" allows any origin.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, allowAll := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || allowAll {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}
	return "", errMissingToken
}

func deviceIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("device_id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-Device-ID"))
}

// Gateway is the /ws endpoint: it authenticates the handshake, admits the
// connection and dispatches inbound events to the services.
type Gateway struct {
	hub      *Hub
	auth     *service.AuthService
	sessions *service.SessionService
	rooms    *service.RoomService
	messages *service.MessageService
	typing   *service.TypingService
	presence *service.PresenceService
	clock    clock.Clock

	checkOrigin func(r *http.Request) bool
	upgrader    websocket.Upgrader
}

type GatewayDeps struct {
	Hub            *Hub
	Auth           *service.AuthService
	Sessions       *service.SessionService
	Rooms          *service.RoomService
	Messages       *service.MessageService
	Typing         *service.TypingService
	Presence       *service.PresenceService
	Clock          clock.Clock
	AllowedOrigins []string
}

func NewGateway(d GatewayDeps) *Gateway {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	checkOrigin := makeCheckOrigin(d.AllowedOrigins)
	return &Gateway{
		hub:         d.Hub,
		auth:        d.Auth,
		sessions:    d.Sessions,
		rooms:       d.Rooms,
		messages:    d.Messages,
		typing:      d.Typing,
		presence:    d.Presence,
		clock:       d.Clock,
		checkOrigin: checkOrigin,
		upgrader: websocket.Upgrader{
			CheckOrigin:  checkOrigin,
			Subprotocols: []string{"bearer"},
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	token, err := extractTokenFromWSRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	user, err := g.auth.Authenticate(r.Context(), token)
	if err != nil {
		log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("ws: handshake rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("ws: upgrade failed")
		return
	}

	c := newClient(conn, user, deviceIDFromRequest(r))
	g.serve(c)
}

// serve runs one admitted connection until it closes.
func (g *Gateway) serve(c *Client) {
	// Connection lifecycle hooks outlive the handshake request.
	ctx := context.Background()
	logger := log.With().Int64("user_id", c.UserID()).Str("conn_id", c.ID()).Logger()

	g.hub.Register(c)
	go c.writePump()
	g.sessions.Open(ctx, c, c.DeviceID())
	logger.Info().Str("device_id", c.DeviceID()).Msg("ws: connected")

	c.readPump(func(raw []byte) { g.dispatch(ctx, c, raw) })

	c.close()
	rooms, _ := g.hub.Unregister(c)
	g.sessions.Close(ctx, c, c.DeviceID(), rooms)
	logger.Info().Msg("ws: disconnected")
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	kind, in, err := events.Decode(raw)
	if err != nil {
		g.rejectFrame(c, kind, in, err)
		return
	}

	switch ev := in.(type) {
	case *events.JoinMatch:
		_ = g.rooms.Join(ctx, c, ev.ConversationID)

	case *events.LeaveMatch:
		g.rooms.Leave(c, ev.ConversationID)

	case *events.SendMessage:
		_, _ = g.messages.Send(ctx, c.User(), c, *ev)

	case *events.TypingStart:
		if err := g.typing.Start(c, ev.ConversationID); err != nil {
			c.Send(events.Error(kind, domain.Reason(err)))
		}

	case *events.TypingStop:
		if err := g.typing.Stop(c, ev.ConversationID); err != nil {
			c.Send(events.Error(kind, domain.Reason(err)))
		}

	case *events.MarkRead:
		if _, err := g.messages.MarkRead(ctx, c.User(), ev.ConversationID); err != nil {
			g.logFailure(c, kind, err)
			c.Send(events.Error(kind, domain.Reason(err)))
		}

	case *events.UpdatePresence:
		if _, err := g.presence.SetPresence(ctx, c.UserID(), domain.PresenceStatus(ev.Status), c.DeviceID()); err != nil {
			c.Send(events.Error(kind, domain.Reason(err)))
		}

	case *events.Ping:
		g.presence.Touch(ctx, c.UserID())
		c.Send(events.Pong(g.clock.Now().UTC()))
	}
}

// rejectFrame answers a frame that failed to decode or validate. A
// send_message keeps its nonce so the client can fail the right message.
func (g *Gateway) rejectFrame(c *Client, kind events.Kind, in events.Inbound, err error) {
	log.Debug().Err(err).Int64("user_id", c.UserID()).Str("event", string(kind)).Msg("ws: frame rejected")
	reason := domain.Reason(fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	if msg, ok := in.(*events.SendMessage); ok {
		c.Send(events.MessageError(reason, msg.Nonce))
		return
	}
	c.Send(events.Error(kind, reason))
}

func (g *Gateway) logFailure(c *Client, kind events.Kind, err error) {
	ev := log.Error()
	if service.IsClientError(err) {
		ev = log.Warn()
	}
	ev.Err(err).Int64("user_id", c.UserID()).Str("event", string(kind)).Msg("ws: request failed")
}
