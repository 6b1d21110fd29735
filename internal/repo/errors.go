package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoCapacity — нет активного хоста со свободным местом.
	ErrNoCapacity = errors.New("no database host with free capacity")
)

// SQLSTATE коды, которые обрабатываются явно.
const (
	codeUniqueViolation   = "23505"
	codeDuplicateDatabase = "42P04"
)

// IsUniqueViolation проверяет, что ошибка — нарушение уникальности.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsDuplicateDatabase проверяет, что CREATE DATABASE упал на существующей базе.
func IsDuplicateDatabase(err error) bool {
	return hasCode(err, codeDuplicateDatabase)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
