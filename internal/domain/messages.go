package domain

// WebSocket message types from client.
const (
	MsgTypeStartBroadcast = "start_broadcast"
	MsgTypeEndBroadcast   = "end_broadcast"
	MsgTypeChat           = "chat"
	MsgTypePing           = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeConnected    = "connected"
	MsgTypeStatus       = "status"
	MsgTypeRoster       = "roster"
	MsgTypeChatReplay   = "chat_replay"
	MsgTypeChatInput    = "chat_input"
	MsgTypeChatCleared  = "chat_cleared"
	MsgTypePublish      = "publish"
	MsgTypeSubscribe    = "subscribe"
	MsgTypeUnsubscribe  = "unsubscribe"
	MsgTypeActionResult = "action_result"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// Error codes carried in error and action_result messages.
const (
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeNotPermitted      = "NOT_PERMITTED"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeActionPending     = "ACTION_PENDING"
	ErrCodeChatDisabled      = "CHAT_DISABLED"
	ErrCodeBackend           = "BACKEND_REQUEST_FAILED"
	ErrCodeSignalDelivery    = "SIGNAL_DELIVERY_FAILED"
	ErrCodeBroadcastConflict = "BROADCAST_IN_PROGRESS"
	ErrCodeNoActiveBroadcast = "NO_ACTIVE_BROADCAST"
	ErrCodeDisconnected      = "DISCONNECTED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// StartBroadcastMessage is sent by the host to go live.
type StartBroadcastMessage struct {
	Type string      `json:"type"`
	RTMP *RTMPTarget `json:"rtmp,omitempty"`
}

// ChatSendMessage is sent by any participant to post a chat line.
type ChatSendMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Server -> Client messages

// ConnectedMessage confirms the participant joined a session.
type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	SessionID    string `json:"sessionId"`
	Role         Role   `json:"role"`
	Name         string `json:"name"`
}

// StatusMessage reports a broadcast status change.
type StatusMessage struct {
	Type      string            `json:"type"`
	Status    BroadcastStatus   `json:"status"`
	Broadcast *BroadcastSession `json:"broadcast,omitempty"`
}

// RosterMessage reports how many streams the participant knows of.
type RosterMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	Wrap  bool   `json:"wrap"`
}

// ChatReceivedMessage carries one chat line.
type ChatReceivedMessage struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// ChatReplayMessage carries persisted chat restored after a reconnect.
type ChatReplayMessage struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

// ChatInputMessage enables or disables the chat box.
type ChatInputMessage struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// MediaMessage tells the client to publish or subscribe to a stream.
type MediaMessage struct {
	Type     string `json:"type"`
	StreamID string `json:"streamId"`
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

// ActionResultMessage answers start_broadcast, end_broadcast and chat.
type ActionResultMessage struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorMessage is sent when a client message cannot be processed.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
