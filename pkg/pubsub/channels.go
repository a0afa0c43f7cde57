package pubsub

import "fmt"

// Channel naming conventions for participant signalling.
const (
	// Fan-out channel shared by every participant of one binding session.
	ChannelSignalToParticipants = "signal:session:%s:to_participants"

	// Pattern matching every session's participant channel.
	PatternSignalToParticipants = "signal:session:*:to_participants"
)

// Event types carried on the participant channel.
const (
	EventStreamCreated   = "stream_created"
	EventStreamDestroyed = "stream_destroyed"
	EventSignal          = "signal"
)

// ParticipantsChannel returns the channel name for a binding session.
func ParticipantsChannel(sessionID string) string {
	return fmt.Sprintf(ChannelSignalToParticipants, sessionID)
}

// StreamPayload is sent when a participant starts or stops publishing.
type StreamPayload struct {
	StreamID       string `json:"stream_id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	ConnectionID   string `json:"connection_id"`
	ConnectionData string `json:"connection_data"`
}

// SignalPayload is a typed application message between participants.
// An empty To means every participant of the session receives it.
type SignalPayload struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Data     string `json:"data"`
	From     string `json:"from"`
	FromData string `json:"from_data"`
	To       string `json:"to,omitempty"`
}
