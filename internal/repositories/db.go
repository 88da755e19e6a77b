package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"medkit/internal/logger"
	"medkit/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TxBeginner interface {
	DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const uniqueViolation = "23505"

// duplicateKey reports a primary-key violation from an insert as a
// ValidationError naming the id. A concurrent writer that passed the same
// existence check gets this instead of a server error.
func duplicateKey(err error, constraint, id, field, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint {
		verr := &models.ValidationError{}
		verr.Add(id, field, message)
		return verr
	}
	return err
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type rowScanner interface {
	Scan(dest ...any) error
}

// Repos bundles every repository bound to one connection or transaction.
type Repos struct {
	Components   ComponentRepository
	Kits         KitRepository
	Bindings     KitBindingRepository
	Usage        UsageRecordRepository
	Distributors DistributorRepository
	Audit        AuditLogsRepository
}

func NewRepos(db DBTX) Repos {
	return Repos{
		Components:   NewComponentRepo(db),
		Kits:         NewKitRepo(db),
		Bindings:     NewKitBindingRepo(db),
		Usage:        NewUsageRecordRepo(db),
		Distributors: NewDistributorRepo(db),
		Audit:        NewAuditLogsRepo(db),
	}
}

// Store hands out repositories and runs units of work in a transaction.
type Store interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(r Repos) error) error
	// InSnapshot runs fn in a read-only transaction that sees one consistent
	// view of every table.
	InSnapshot(ctx context.Context, fn func(r Repos) error) error
}

type pgStore struct {
	db    TxBeginner
	repos Repos
}

var (
	txOptions       = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	snapshotOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

func NewStore(db TxBeginner) Store {
	return &pgStore{db: db, repos: NewRepos(db)}
}

func (s *pgStore) Repos() Repos {
	return s.repos
}

// InTx commits when fn returns nil and rolls back otherwise. Row locks taken
// with SELECT ... FOR UPDATE inside fn are held until then.
func (s *pgStore) InTx(ctx context.Context, fn func(r Repos) error) error {
	return s.run(ctx, txOptions, fn)
}

func (s *pgStore) InSnapshot(ctx context.Context, fn func(r Repos) error) error {
	return s.run(ctx, snapshotOptions, fn)
}

func (s *pgStore) run(ctx context.Context, opts pgx.TxOptions, fn func(r Repos) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(NewRepos(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Warn(ctx, "rollback failed", logger.ErrorF(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
