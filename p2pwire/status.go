package p2pwire

// StatusCode is the 3-digit reply code spec.md §4.9 attaches to a Reject:
// 2xx success, 4xx client error (bannable), 5xx server error (warn only).
type StatusCode int

const (
	StatusOK StatusCode = 200

	StatusMalformedMessage  StatusCode = 400
	StatusInvalidRequest    StatusCode = 401
	StatusRequestedGenesis  StatusCode = 402
	StatusDuplicateRequest  StatusCode = 403
	StatusTooManyHashes     StatusCode = 404

	StatusInternalError StatusCode = 500
	StatusNetworkError  StatusCode = 501
)

// IsClientError reports whether code is in the 4xx range: the peer
// violated the protocol and its misbehavior score should be docked.
func (c StatusCode) IsClientError() bool { return c >= 400 && c < 500 }

// IsServerError reports whether code is in the 5xx range: this node's own
// fault, logged but never counted against the peer.
func (c StatusCode) IsServerError() bool { return c >= 500 && c < 600 }
