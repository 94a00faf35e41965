// Package errors provides structured domain errors shared by both services.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"

	// Replication errors
	CodeSyncUnavailable         Code = "SYNC_UNAVAILABLE"
	CodeReplicaWriteFailed      Code = "REPLICA_WRITE_FAILED"
	CodeMalformedMessage        Code = "MALFORMED_MESSAGE"
	CodeReferentialPrecondition Code = "REFERENTIAL_PRECONDITION"

	// Event transport errors
	CodePublishFailed Code = "PUBLISH_FAILED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument, CodeMalformedMessage:
		return codes.InvalidArgument
	case CodeNotFound, CodeReferentialPrecondition:
		return codes.NotFound
	case CodeAlreadyExists:
		return codes.AlreadyExists
	case CodeSyncUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
//
// A missing parent platform is reported as 404 so callers see the same shape
// as a read of a platform that was never replicated.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeMalformedMessage:
		return http.StatusBadRequest
	case CodeNotFound, CodeReferentialPrecondition:
		return http.StatusNotFound
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeSyncUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
