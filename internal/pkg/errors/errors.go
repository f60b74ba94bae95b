package errors

import "errors"

var (
	ErrInvalid              = errors.New("invalid")
	ErrNotFound             = errors.New("not found")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrPersistence          = errors.New("persistence failure")
	ErrDimension            = errors.New("vector dimension mismatch")
)

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsEmbeddingUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable)
}

func IsDimension(err error) bool {
	return errors.Is(err, ErrDimension)
}
