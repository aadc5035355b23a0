package voicelive

import "errors"

var (
	// ErrSessionNotFound is returned by the registry for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrConnectionUnavailable is returned when the upstream transport is not
	// open after one reconnect attempt.
	ErrConnectionUnavailable = errors.New("upstream connection unavailable")
	// ErrNegotiationTimeout is returned when no avatar negotiating event
	// arrives within the negotiation deadline.
	ErrNegotiationTimeout = errors.New("avatar negotiation timed out")
	// ErrNegotiationPending is returned when an avatar offer is issued while
	// another negotiation is still outstanding on the same session.
	ErrNegotiationPending = errors.New("avatar negotiation already in progress")
	// ErrNegotiationDecode is returned when the upstream answer decodes to an
	// empty SDP.
	ErrNegotiationDecode = errors.New("avatar negotiation returned no usable answer")
)
