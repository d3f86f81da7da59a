// Package store defines the relational store the sync engine writes to.
//
// The engine sees the store only through these interfaces: a Store opens one
// batch transaction per entity batch, and every record of the batch runs
// inside its own savepoint so a failing record rolls back alone. Package
// store/postgres implements them on pgx.
package store

import (
	"context"
	"errors"
)

var (
	// ErrBrokerNotFound is returned when no broker matches a file's broker name.
	ErrBrokerNotFound = errors.New("broker not found")

	// ErrConnectionLost marks failures after which the batch transaction can
	// no longer be used.
	ErrConnectionLost = errors.New("store connection lost")
)

// Store opens batch transactions.
type Store interface {
	// BeginBatch starts the transaction for one entity batch. An error here
	// means the store is unreachable and the batch cannot run.
	BeginBatch(ctx context.Context) (Tx, error)
}

// Tx is the transaction of one batch.
type Tx interface {
	Repos

	// Record runs fn under a savepoint. When fn fails, its writes are rolled
	// back and the transaction stays usable for the next record. Errors that
	// leave the transaction unusable wrap ErrConnectionLost.
	Record(ctx context.Context, fn func(Repos) error) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repos holds the lookups and writes the engine performs. Find methods return
// a nil row (or ok false) and a nil error when nothing matches.
type Repos interface {
	// FindBrokerID matches brokers whose full name starts with name, ignoring
	// case.
	FindBrokerID(ctx context.Context, name string) (id int64, ok bool, err error)

	FindClientID(ctx context.Context, tenantID int64, document string) (id int64, ok bool, err error)
	CreateClient(ctx context.Context, c ClientRow) (int64, error)

	FindProposal(ctx context.Context, tenantID int64, number string) (*ProposalRow, error)
	InsertProposal(ctx context.Context, p ProposalRow) error
	UpdateProposal(ctx context.Context, p ProposalRow) error

	FindDefaulter(ctx context.Context, key DefaulterKey) (*DefaulterRow, error)
	InsertDefaulter(ctx context.Context, d DefaulterRow) error
	UpdateDefaulter(ctx context.Context, d DefaulterRow) error

	FindProduct(ctx context.Context, key ProductKey) (*ProductRow, error)
	InsertProduct(ctx context.Context, p ProductRow) error
	UpdateProduct(ctx context.Context, p ProductRow) error
}
