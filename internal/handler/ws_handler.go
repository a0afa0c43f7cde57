package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/huijing/sgtechonline/internal/chat"
	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/hub"
	"github.com/huijing/sgtechonline/internal/role"
	"github.com/huijing/sgtechonline/internal/service"
	"github.com/huijing/sgtechonline/internal/transport"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler joins websocket clients to a binding session, one role
// controller per connection.
type WSHandler struct {
	hub            *hub.Hub
	transport      *transport.Hub
	coordinator    service.BroadcastCoordinator
	store          chat.Store
	defaultSession string
}

// NewWSHandler creates a new WebSocket handler. store may be nil, in which
// case viewers keep no chat history across reconnects.
func NewWSHandler(h *hub.Hub, th *transport.Hub, coordinator service.BroadcastCoordinator, store chat.Store, defaultSession string) *WSHandler {
	return &WSHandler{
		hub:            h,
		transport:      th,
		coordinator:    coordinator,
		store:          store,
		defaultSession: defaultSession,
	}
}

// HandleWebSocket handles GET /ws?role=&name=&session=&key=.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.Ctx(r.Context())
	q := r.URL.Query()

	participantRole, err := domain.ParseRole(q.Get("role"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, domain.ErrCodeValidation, err.Error())
		return
	}
	sessionID := strings.TrimSpace(q.Get("session"))
	if sessionID == "" {
		sessionID = h.defaultSession
	}
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, domain.ErrCodeValidation, "session is required")
		return
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = string(participantRole)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	tconn := transport.NewConnection(name)
	// The request context ends when this handler returns; keep its logger.
	base, logger := pkglog.WithParticipant(pkglog.WithLogger(context.Background(), l), pkglog.Participant{
		SessionID:    sessionID,
		ConnectionID: tconn.ID,
		Role:         string(participantRole),
		Name:         name,
	})
	ctx, cancel := context.WithCancel(base)

	client := hub.NewClient(h.hub, conn, tconn.ID, sessionID, participantRole)
	view := &clientView{client: client, logger: logger}

	sess, err := h.transport.Connect(ctx, sessionID, tconn, &clientSink{view: view})
	if err != nil {
		cancel()
		logger.Error().Err(err).Msg("failed to join transport session")
		conn.WriteJSON(domain.NewErrorMessage(domain.ErrCodeInternal, "failed to join session"))
		conn.Close()
		return
	}

	cfg := role.Config{
		Role:             participantRole,
		BindingSessionID: sessionID,
		ParticipantKey:   q.Get("key"),
		Session:          sess,
		View:             view,
	}
	switch participantRole {
	case domain.RoleHost:
		cfg.Coordinator = h.coordinator
	case domain.RoleViewer:
		cfg.Store = h.store
	}
	ctrl, err := role.NewController(cfg)
	if err != nil {
		cancel()
		sess.Close(context.Background())
		logger.Error().Err(err).Msg("failed to create participant controller")
		conn.WriteJSON(domain.NewErrorMessage(domain.ErrCodeInternal, "failed to join session"))
		conn.Close()
		return
	}

	client.SetDisconnectHandler(func(c *hub.Client) {
		cancel()
		<-ctrl.Done()
		if err := sess.Close(context.Background()); err != nil && !errors.Is(err, transport.ErrSessionClosed) {
			logger.Warn().Err(err).Msg("failed to close transport session")
		}
	})

	h.hub.Register(client)
	view.send(&domain.ConnectedMessage{
		Type:         domain.MsgTypeConnected,
		ConnectionID: tconn.ID,
		SessionID:    sessionID,
		Role:         participantRole,
		Name:         name,
	})

	go client.WritePump()
	go client.ReadPump(func(c *hub.Client, message []byte) {
		h.handleMessage(ctx, c, ctrl, message)
	})
	go func() {
		err := ctrl.Run(ctx)
		if ctx.Err() == nil {
			// The controller stopped on its own; drop the socket so the
			// client reconnects.
			if err != nil {
				logger.Error().Err(err).Msg("participant controller stopped")
			}
			conn.Close()
		}
	}()
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, ctrl *role.Controller, message []byte) {
	l := pkglog.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	switch base.Type {
	case domain.MsgTypeStartBroadcast:
		var msg domain.StartBroadcastMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid start_broadcast message"))
			return
		}
		go h.reply(ctx, client, base.Type, ctrl.StartBroadcast(msg.RTMP))

	case domain.MsgTypeEndBroadcast:
		go h.reply(ctx, client, base.Type, ctrl.EndBroadcast())

	case domain.MsgTypeChat:
		var msg domain.ChatSendMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid chat message"))
			return
		}
		go h.reply(ctx, client, base.Type, ctrl.SendChat(msg.Text))

	case domain.MsgTypePing:
		client.SendMessage(&domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		l.Debug().Str("message_type", base.Type).Msg("unknown message type")
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

// reply waits for an action outcome and reports it to the client.
func (h *WSHandler) reply(ctx context.Context, client *hub.Client, action string, result <-chan error) {
	err := <-result

	msg := &domain.ActionResultMessage{
		Type:    domain.MsgTypeActionResult,
		Action:  action,
		Success: err == nil,
	}
	if err != nil {
		msg.Code = actionErrorCode(err)
		msg.Message = err.Error()
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("action", action).Msg("participant action failed")
	}
	client.SendMessage(msg)
}

func actionErrorCode(err error) string {
	var verr *domain.ValidationError
	var berr *domain.BackendRequestError
	var serr *domain.SignalDeliveryError

	switch {
	case errors.As(err, &verr):
		return domain.ErrCodeValidation
	case errors.Is(err, role.ErrNotPermitted):
		return domain.ErrCodeNotPermitted
	case errors.Is(err, role.ErrInvalidState):
		return domain.ErrCodeInvalidState
	case errors.Is(err, role.ErrActionPending):
		return domain.ErrCodeActionPending
	case errors.Is(err, role.ErrChatDisabled):
		return domain.ErrCodeChatDisabled
	case errors.Is(err, role.ErrStopped):
		return domain.ErrCodeDisconnected
	case errors.Is(err, domain.ErrBroadcastInProgress):
		return domain.ErrCodeBroadcastConflict
	case errors.Is(err, domain.ErrNoActiveBroadcast):
		return domain.ErrCodeNoActiveBroadcast
	case errors.As(err, &berr):
		return domain.ErrCodeBackend
	case errors.As(err, &serr):
		return domain.ErrCodeSignalDelivery
	default:
		return domain.ErrCodeInternal
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(domain.NewErrorMessage(code, message))
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
}
