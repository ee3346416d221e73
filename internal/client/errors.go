package client

import "errors"

// Operation failures surface as one of these sentinels, wrapped with detail.
var (
	// ErrAuth means no authenticated identity was available for an
	// operation that requires one. Not retried.
	ErrAuth = errors.New("not authenticated")
	// ErrValidation means the payload was rejected before any network
	// call, e.g. a send with neither text nor attachment.
	ErrValidation = errors.New("validation failed")
	// ErrStorage means an upload or signed URL issuance failed. Prior
	// state is left untouched.
	ErrStorage = errors.New("storage operation failed")
	// ErrPersistence means the store rejected an insert, update or
	// delete, including a sender predicate matching zero rows.
	ErrPersistence = errors.New("persistence rejected")
	// ErrNoConversation means no conversation is currently open.
	ErrNoConversation = errors.New("no open conversation")
)
