package broker

import (
	"fmt"

	"github.com/pscheid92/hashpipe/internal/domain"
	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
)

// maxFrameBytes is the socket-level read limit. gorilla closes with 1009 above it,
// before the validator ever sees the frame.
const maxFrameBytes = 1 << 20

type inbound struct {
	doc domain.StateDocument
	// diagnostic is set for testTooManyClients; the sender is to be rejected.
	diagnostic bool
}

type validator struct {
	maxMessageLength int
}

// validate checks the raw frame length, then parses the envelope. A frame of
// exactly maxMessageLength bytes is accepted. Broker-only actions are malformed.
func (v validator) validate(raw []byte) (inbound, error) {
	if len(raw) > v.maxMessageLength {
		return inbound{}, apperrors.OversizeMessage(len(raw), v.maxMessageLength)
	}

	doc, err := domain.DecodeStateDocument(raw)
	if err != nil {
		return inbound{}, apperrors.MalformedPayload(err).WithField("bytes", len(raw))
	}

	switch doc.Action() {
	case domain.ActionTestTooManyClients:
		return inbound{diagnostic: true}, nil
	case domain.ActionAssignID, domain.ActionServerMsg:
		// Only the broker sends these; a relayed copy would impersonate it.
		return inbound{}, apperrors.MalformedPayload(fmt.Errorf("reserved action %q", doc.Action())).WithField("bytes", len(raw))
	}
	return inbound{doc: doc}, nil
}
