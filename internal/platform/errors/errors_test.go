package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/hashpipe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityExceeded(t *testing.T) {
	err := CapacityExceeded(20)

	assert.Equal(t, TypeCapacityExceeded, err.Type)
	assert.True(t, err.Fatal())
	assert.Equal(t, domain.CloseTooManyClients, err.CloseCode())
	assert.Equal(t, domain.ReasonTooManyClients, err.CloseReason())
	assert.Equal(t, 20, err.Context["max_clients"])
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.NotErrorIs(t, err, ErrOversizeMessage)
}

func TestOversizeMessage(t *testing.T) {
	err := OversizeMessage(501, 500)

	assert.Equal(t, TypeOversizeMessage, err.Type)
	assert.True(t, err.Fatal())
	assert.Equal(t, 1009, err.CloseCode())
	assert.Equal(t, "Message length too long", err.CloseReason())
	assert.Contains(t, err.Error(), "501")
	assert.ErrorIs(t, err, ErrOversizeMessage)
}

func TestMalformedPayload(t *testing.T) {
	cause := fmt.Errorf("unexpected end of JSON input")
	err := MalformedPayload(cause)

	assert.Equal(t, TypeMalformedPayload, err.Type)
	assert.False(t, err.Fatal(), "malformed input must not close the connection")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestDeliveryAndTransportAreFatal(t *testing.T) {
	assert.True(t, DeliveryFailure("write failed", nil).Fatal())
	assert.True(t, TransportError("abnormal closure", nil).Fatal())
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Nil(t, err.Cause)
	assert.NotContains(t, err.Error(), "<nil>")
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestRateLimited(t *testing.T) {
	err := RateLimited("too many connection attempts")
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus())
	assert.Equal(t, TypeRateLimited, err.ToResponse().Type)
}

func TestWithField(t *testing.T) {
	err := ValidationError("bad input").WithField("client_id", int64(3))
	assert.Equal(t, int64(3), err.Context["client_id"])

	attrs := err.LogAttrs()
	assert.Contains(t, attrs, "client_id")
	assert.Contains(t, attrs, int64(3))
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := OversizeMessage(10, 5)
	wrapped := fmt.Errorf("read pump: %w", original)
	require.Same(t, original, AsStructuredError(wrapped))

	plain := errors.New("boom")
	converted := AsStructuredError(plain)
	assert.Equal(t, TypeInternal, converted.Type)
	assert.Equal(t, plain, converted.Cause)
}
