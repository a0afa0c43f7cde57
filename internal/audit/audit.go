package audit

import (
	"context"

	"github.com/huijing/sgtechonline/pkg/log"
)

// Audit actions for broadcast control.
const (
	ActionBroadcastStart  = "broadcast.start"
	ActionBroadcastLayout = "broadcast.layout"
	ActionBroadcastEnd    = "broadcast.end"
)

// Field constants for audit entries.
const (
	FieldAction  = "action"
	FieldOutcome = "outcome"
	FieldDetail  = "detail"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, sessionID, broadcastID string, err error, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info()
	outcome := OutcomeSuccess
	if err != nil {
		evt = l.Warn().Err(err)
		outcome = OutcomeFailure
	}
	evt.
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldOutcome, outcome).
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldBroadcastID, broadcastID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, sessionID, broadcastID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldOutcome, OutcomeSuccess).
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldBroadcastID, broadcastID).
		Str(FieldDetail, detail).
		Msg(msg)
}
