package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mcdev12/crossroads/go/internal/apperr"
)

// InboundType is the kind of a client command.
type InboundType string

const (
	InboundJoin        InboundType = "join"
	InboundVote        InboundType = "vote"
	InboundStartVoting InboundType = "startVoting"
	InboundLeave       InboundType = "leave"
)

// Inbound is a decoded client command.
type Inbound struct {
	Type     InboundType `json:"type"`
	Name     string      `json:"name,omitempty"`
	Token    string      `json:"token,omitempty"`
	ChoiceID string      `json:"choiceId,omitempty"`
}

// DecodeInbound parses and validates a client command. Every failure is a
// validation error so the gateway can report it and keep the connection open.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, apperr.Wrap(apperr.CodeValidation, "malformed message", err)
	}

	switch in.Type {
	case "":
		return Inbound{}, apperr.Validation("message type is required")
	case InboundJoin:
		if strings.TrimSpace(in.Name) == "" && in.Token == "" {
			return Inbound{}, apperr.Validation("join requires a name or a reconnect token")
		}
	case InboundVote:
		if in.ChoiceID == "" {
			return Inbound{}, apperr.Validation("vote requires a choiceId")
		}
	case InboundStartVoting, InboundLeave:
	default:
		return Inbound{}, apperr.Validation("unknown message type %q", in.Type)
	}
	return in, nil
}

// ErrorMessage builds the error message for err.
func ErrorMessage(sessionID string, err error, now time.Time) Message {
	code := apperr.CodeOf(err)
	text := err.Error()
	if code == apperr.CodeInternal {
		text = "internal error"
	}
	msg, _ := New(sessionID, TypeError, ErrorPayload{Code: string(code), Message: text}, now)
	return msg
}
