// Package errors provides structured domain errors for the session engine.
package errors

import "connectrpc.com/connect"

// Kind groups codes into the failure classes callers branch on.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindConnectivity  Kind = "connectivity"
	KindInternal      Kind = "internal"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeInvalidRoundCount Code = "SESSION_INVALID_ROUND_COUNT"
	CodeInvalidRole       Code = "MEMBER_INVALID_ROLE"
	CodeEmptyContent      Code = "EMPTY_CONTENT"

	// State errors
	CodeInvalidTransition  Code = "ROUND_INVALID_TRANSITION"
	CodeSessionNotCreated  Code = "SESSION_NOT_CREATED"
	CodeSessionNotActive   Code = "SESSION_NOT_ACTIVE"
	CodeSessionEnded       Code = "SESSION_ENDED"
	CodePreviousRoundOpen  Code = "ROUND_PREVIOUS_NOT_DONE"
	CodeRoundNotAccepting  Code = "ROUND_NOT_ACCEPTING_SUBMISSION"
	CodeRoundHasNoDeadline Code = "ROUND_HAS_NO_DEADLINE"
	CodeRoundClosed        Code = "ROUND_CLOSED"

	// Access errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNotAuthorized   Code = "NOT_AUTHORIZED"
	CodeNotMember       Code = "NOT_A_MEMBER"

	// Concurrency errors
	CodeRoundConflict   Code = "ROUND_CONFLICT"
	CodeSessionConflict Code = "SESSION_CONFLICT"

	// Lookup errors
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeRoundNotFound   Code = "ROUND_NOT_FOUND"
	CodeMemberNotFound  Code = "MEMBER_NOT_FOUND"

	// Connectivity errors
	CodeStoreUnavailable    Code = "STORE_UNAVAILABLE"
	CodeRealtimeUnavailable Code = "REALTIME_UNAVAILABLE"
	CodeSnapshotUnavailable Code = "SNAPSHOT_UNAVAILABLE"
)

// Kind returns the failure class for the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidArgument, CodeInvalidRoundCount, CodeInvalidRole, CodeEmptyContent,
		CodeInvalidTransition, CodeSessionNotCreated, CodeSessionNotActive, CodeSessionEnded,
		CodePreviousRoundOpen, CodeRoundNotAccepting, CodeRoundHasNoDeadline, CodeRoundClosed:
		return KindValidation
	case CodeUnauthenticated, CodeNotAuthorized, CodeNotMember:
		return KindAuthorization
	case CodeRoundConflict, CodeSessionConflict:
		return KindConflict
	case CodeSessionNotFound, CodeRoundNotFound, CodeMemberNotFound:
		return KindNotFound
	case CodeStoreUnavailable, CodeRealtimeUnavailable, CodeSnapshotUnavailable:
		return KindConnectivity
	default:
		return KindInternal
	}
}

// ConnectCode maps domain codes to connect status codes.
func (c Code) ConnectCode() connect.Code {
	switch c {
	// InvalidArgument - malformed input
	case CodeInvalidArgument, CodeInvalidRoundCount, CodeInvalidRole, CodeEmptyContent:
		return connect.CodeInvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInvalidTransition, CodeSessionNotCreated, CodeSessionNotActive, CodeSessionEnded,
		CodePreviousRoundOpen, CodeRoundNotAccepting, CodeRoundHasNoDeadline, CodeRoundClosed:
		return connect.CodeFailedPrecondition

	case CodeUnauthenticated:
		return connect.CodeUnauthenticated

	case CodeNotAuthorized, CodeNotMember:
		return connect.CodePermissionDenied

	// Aborted - lost an optimistic concurrency race (HTTP 409)
	case CodeRoundConflict, CodeSessionConflict:
		return connect.CodeAborted

	case CodeSessionNotFound, CodeRoundNotFound, CodeMemberNotFound:
		return connect.CodeNotFound

	case CodeStoreUnavailable, CodeRealtimeUnavailable, CodeSnapshotUnavailable:
		return connect.CodeUnavailable

	default:
		return connect.CodeInternal
	}
}

// codeFromConnect picks a representative domain code for a bare connect
// error that carried no domain detail.
func codeFromConnect(c connect.Code) Code {
	switch c {
	case connect.CodeInvalidArgument:
		return CodeInvalidArgument
	case connect.CodeFailedPrecondition:
		return CodeInvalidTransition
	case connect.CodeUnauthenticated:
		return CodeUnauthenticated
	case connect.CodePermissionDenied:
		return CodeNotAuthorized
	case connect.CodeAborted:
		return CodeRoundConflict
	case connect.CodeNotFound:
		return CodeSessionNotFound
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded:
		return CodeStoreUnavailable
	default:
		return CodeUnknown
	}
}
