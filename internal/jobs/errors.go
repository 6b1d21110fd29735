package jobs

import "errors"

var (
	// ErrUnknownKind — для kind нет описания.
	ErrUnknownKind = errors.New("unknown job kind")

	// ErrUnknownQueue — нет preset'а с таким именем.
	ErrUnknownQueue = errors.New("unknown queue preset")

	// ErrInvalidPayload — payload не соответствует kind'у.
	ErrInvalidPayload = errors.New("invalid job payload")
)
