package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// ErrTransport indicates a broker connection or delivery failure.
	ErrTransport = errors.New("transport error")
	// ErrDecode indicates a payload that is not a valid Sparkplug B protobuf.
	ErrDecode = errors.New("malformed sparkplug payload")
	// ErrInvalidTopic indicates a topic that does not follow the Sparkplug namespace layout.
	ErrInvalidTopic = errors.New("invalid sparkplug topic")
	// ErrAliasUnresolved is reported, never returned to callers, when an
	// alias-only metric arrives for a device without a matching birth.
	ErrAliasUnresolved = errors.New("metric alias could not be resolved")
	ErrStorageWrite    = errors.New("storage write failed")
	ErrStorageRead     = errors.New("storage read failed")
	ErrQueryValidation = errors.New("invalid query")
)
