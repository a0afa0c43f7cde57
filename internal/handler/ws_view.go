package handler

import (
	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/hub"
	"github.com/huijing/sgtechonline/internal/layout"
	"github.com/huijing/sgtechonline/internal/transport"
	"github.com/rs/zerolog"
)

// clientView renders controller updates as websocket messages.
type clientView struct {
	client *hub.Client
	logger zerolog.Logger
}

func (v *clientView) send(msg interface{}) {
	if err := v.client.SendMessage(msg); err != nil {
		v.logger.Warn().Err(err).Msg("failed to send message to client")
	}
}

func (v *clientView) StatusChanged(status domain.BroadcastStatus, broadcast *domain.BroadcastSession) {
	v.send(&domain.StatusMessage{Type: domain.MsgTypeStatus, Status: status, Broadcast: broadcast})
}

func (v *clientView) RosterChanged(count int) {
	v.send(&domain.RosterMessage{Type: domain.MsgTypeRoster, Count: count, Wrap: layout.Wrap(count)})
}

func (v *clientView) ChatReceived(msg domain.ChatMessage) {
	v.send(&domain.ChatReceivedMessage{Type: domain.MsgTypeChat, Message: msg})
}

func (v *clientView) ChatReplayed(msgs []domain.ChatMessage) {
	v.send(&domain.ChatReplayMessage{Type: domain.MsgTypeChatReplay, Messages: msgs})
}

func (v *clientView) ChatInputEnabled(enabled bool) {
	v.send(&domain.ChatInputMessage{Type: domain.MsgTypeChatInput, Enabled: enabled})
}

func (v *clientView) ChatCleared() {
	v.send(&domain.BaseMessage{Type: domain.MsgTypeChatCleared})
}

// clientSink forwards media commands to the browser, which owns the media plane.
type clientSink struct {
	view *clientView
}

func (s *clientSink) Publish(st transport.Stream) {
	s.view.send(&domain.MediaMessage{Type: domain.MsgTypePublish, StreamID: st.ID, Name: st.Name, Role: st.Role})
}

func (s *clientSink) Subscribe(st transport.Stream) {
	s.view.send(&domain.MediaMessage{Type: domain.MsgTypeSubscribe, StreamID: st.ID, Name: st.Name, Role: st.Role})
}

func (s *clientSink) Unsubscribe(streamID string) {
	s.view.send(&domain.MediaMessage{Type: domain.MsgTypeUnsubscribe, StreamID: streamID})
}
