package worker

import "errors"

// Ошибки воркера.
var (
	// ErrJobNotFound — job не найден в БД.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotWaiting — job уже забран другим worker'ом или завершён.
	ErrJobNotWaiting = errors.New("job is not waiting")

	// ErrUnknownKind — нет handler'а для kind.
	ErrUnknownKind = errors.New("no handler for job kind")

	// ErrPermanent — ошибка, которую бессмысленно ретраить.
	ErrPermanent = errors.New("permanent job failure")
)
