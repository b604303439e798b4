package repository

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenced is returned when a write would break a foreign key.
	ErrReferenced = errors.New("record is referenced")
)

// TxManager runs fn inside a single database transaction. Repositories called
// with the ctx passed to fn join that transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}
