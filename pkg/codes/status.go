package codes

// Request lifecycle status codes.
const (
	ReqStatusPending    = "pending"
	ReqStatusDelegating = "delegating" // Offered to a carrier-supplied handler
	ReqStatusRunning    = "running"
	ReqStatusSucceeded  = "succeeded"
	ReqStatusFailed     = "failed"
)

// Request kinds.
const (
	KindSend     = "send"
	KindDownload = "download"
)

// Failure class codes surfaced to callers alongside a failed status.
const (
	ErrorCodeNoConfig       = "NO_CONFIG"
	ErrorCodeAcquireTimeout = "NETWORK_ACQUIRE_TIMEOUT"
	ErrorCodeIO             = "IO_ERROR"
	ErrorCodeProtocol       = "PROTOCOL_ERROR"
	ErrorCodeMalformed      = "MALFORMED_REQUEST"
	ErrorCodeThrottled      = "THROTTLED"
	ErrorCodeSystemError    = "SYS_ERR"
)

// Network lease states.
const (
	LeaseStateIdle       = "idle"
	LeaseStateRequesting = "requesting"
	LeaseStateAvailable  = "available"
	LeaseStateLost       = "lost"
)
