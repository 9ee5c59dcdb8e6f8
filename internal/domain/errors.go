package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the routing core.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrDiscovery        = fmt.Errorf("agent discovery failed")
	ErrNoAgentAvailable = fmt.Errorf("no agent available")
	ErrRPC              = fmt.Errorf("agent returned rpc error")
	ErrTransport        = fmt.Errorf("transport failure")
	ErrGatewayAuth      = fmt.Errorf("gateway authentication failed")
	ErrRateLimited      = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Refresh")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and
// for surfacing failure kinds to the platform adapter.
type ErrorCode string

const (
	CodeUnknown     ErrorCode = "UNKNOWN"
	CodeNotFound    ErrorCode = "NOT_FOUND"
	CodeInvalid     ErrorCode = "INVALID_INPUT"
	CodeTimeout     ErrorCode = "TIMEOUT"
	CodeDiscovery   ErrorCode = "DISCOVERY"
	CodeNoAgent     ErrorCode = "NO_AGENT_AVAILABLE"
	CodeRPC         ErrorCode = "RPC_ERROR"
	CodeTransport   ErrorCode = "TRANSPORT"
	CodeGatewayAuth ErrorCode = "GATEWAY_AUTH"
	CodeRateLimited ErrorCode = "RATE_LIMITED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrInvalidInput:     CodeInvalid,
	ErrTimeout:          CodeTimeout,
	ErrDiscovery:        CodeDiscovery,
	ErrNoAgentAvailable: CodeNoAgent,
	ErrRPC:              CodeRPC,
	ErrTransport:        CodeTransport,
	ErrGatewayAuth:      CodeGatewayAuth,
	ErrRateLimited:      CodeRateLimited,
}

// ErrorCodeOf returns the machine-parseable error code for the given
// error, walking the error chain with errors.Is. Returns CodeUnknown if
// no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
