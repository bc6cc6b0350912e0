package server

// RFC 6455 WebSocket close codes used by the server.
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.1
//
// Clients branch on these codes, so the mapping from failure to code is part
// of the wire contract:
//   - CloseNormalClosure: peer closed or graceful finish
//   - CloseGoingAway: server shutting down (endpoint unavailable)
//   - CloseInvalidPayload: schema/decode failure on an expected message
//   - ClosePolicyViolation: authentication failure after upgrade
//   - CloseInternalError: unhandled fault, detail carries the error text
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseInvalidPayload  = 1007
	ClosePolicyViolation = 1008
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011

	// CloseAbnormalClosure records a connection lost without a close
	// handshake (reset, timeout). RFC 6455 reserves 1006 for reporting;
	// it is never sent in a close frame.
	CloseAbnormalClosure = 1006
)

// Close reason strings sent in close frames. Literal values are part of the
// wire contract.
const (
	closeReasonNormal         = "normal closure"
	closeReasonInvalidPayload = "invalid payload data"
	closeReasonInternalError  = "internal server error"
	closeReasonUnavailable    = "endpoint unavailable"
	closeReasonAbnormal       = "abnormal closure"
)

// closeCodeName returns a human-readable name for a WebSocket close code.
func closeCodeName(code int) string {
	switch code {
	case CloseNormalClosure:
		return "NormalClosure"
	case CloseGoingAway:
		return "GoingAway"
	case CloseProtocolError:
		return "ProtocolError"
	case CloseUnsupportedData:
		return "UnsupportedData"
	case CloseInvalidPayload:
		return "InvalidPayload"
	case CloseAbnormalClosure:
		return "AbnormalClosure"
	case ClosePolicyViolation:
		return "PolicyViolation"
	case CloseMessageTooBig:
		return "MessageTooBig"
	case CloseInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}
