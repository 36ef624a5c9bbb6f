package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"authright.org/internal/registry"
)

// Migrations holds the schema applied by cmd/migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

// serialization_failure; the unit of work is re-run against fresh state.
const codeSerializationFailure = "40001"

const maxAttempts = 3

// Store keeps the registry tables in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Update runs fn inside a SERIALIZABLE transaction. Conflicting concurrent
// units abort with a serialization failure; those are re-run so the loser
// observes the winner's writes.
func (s *Store) Update(ctx context.Context, fn func(registry.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) View(ctx context.Context, fn func(registry.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(registry.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx, readOnly: opts.ReadOnly}); err != nil {
		return err
	}
	return tx.Commit()
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeSerializationFailure
}

// LoadHead returns the persisted chain height, zero when none was saved.
func (s *Store) LoadHead(ctx context.Context) (uint64, error) {
	var h int64
	err := s.db.QueryRowContext(ctx, `select height from chain_head where id = 1`).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(h), nil
}

// SaveHead persists height. The stored value never decreases.
func (s *Store) SaveHead(ctx context.Context, height uint64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into chain_head(id, height, updated_at) values (1, $1, now())
		on conflict (id) do update
		set height = greatest(chain_head.height, excluded.height), updated_at = now()
	`, int64(height))
	return err
}

type pgTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *pgTx) Organizations() registry.Table[registry.Organization] { return orgTable{t} }
func (t *pgTx) AuthRights() registry.Table[string]                  { return rightTable{t} }
func (t *pgTx) AuthDetails() registry.Table[registry.AuthDetail]     { return detailTable{t} }

func (t *pgTx) exists(ctx context.Context, query string, key []byte) (bool, error) {
	var ok bool
	if err := t.tx.QueryRowContext(ctx, query, key).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (t *pgTx) exec(ctx context.Context, query string, args ...any) error {
	if t.readOnly {
		return registry.ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

// Organization table --------------------------------------------------------
type orgTable struct{ t *pgTx }

func (o orgTable) Contains(ctx context.Context, code []byte) (bool, error) {
	return o.t.exists(ctx, `select exists(select 1 from organizations where code = $1)`, code)
}

func (o orgTable) Get(ctx context.Context, code []byte) (registry.Organization, bool, error) {
	var org registry.Organization
	err := o.t.tx.QueryRowContext(ctx,
		`select code, name, status from organizations where code = $1`, code,
	).Scan((*[]byte)(&org.Code), (*[]byte)(&org.Name), &org.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Organization{}, false, nil
	}
	if err != nil {
		return registry.Organization{}, false, err
	}
	return org, true, nil
}

func (o orgTable) Insert(ctx context.Context, code []byte, org registry.Organization) error {
	return o.t.exec(ctx, `
		insert into organizations(code, name, status) values ($1, $2, $3)
		on conflict (code) do update set name = excluded.name, status = excluded.status
	`, code, nonNil(org.Name), org.Status)
}

// AuthRight table -----------------------------------------------------------
type rightTable struct{ t *pgTx }

func (r rightTable) Contains(ctx context.Context, hash []byte) (bool, error) {
	return r.t.exists(ctx, `select exists(select 1 from auth_rights where hash = $1)`, hash)
}

func (r rightTable) Get(ctx context.Context, hash []byte) (string, bool, error) {
	var account string
	err := r.t.tx.QueryRowContext(ctx, `select account_id from auth_rights where hash = $1`, hash).Scan(&account)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return account, true, nil
}

func (r rightTable) Insert(ctx context.Context, hash []byte, account string) error {
	return r.t.exec(ctx, `
		insert into auth_rights(hash, account_id) values ($1, $2)
		on conflict (hash) do update set account_id = excluded.account_id
	`, hash, account)
}

// AuthDetail table ----------------------------------------------------------
type detailTable struct{ t *pgTx }

func (d detailTable) Contains(ctx context.Context, hash []byte) (bool, error) {
	return d.t.exists(ctx, `select exists(select 1 from auth_details where hash = $1)`, hash)
}

func (d detailTable) Get(ctx context.Context, hash []byte) (registry.AuthDetail, bool, error) {
	var (
		detail registry.AuthDetail
		block  int64
	)
	err := d.t.tx.QueryRowContext(ctx, `
		select hash, account_id, block_number, description, org_code
		from auth_details where hash = $1
	`, hash).Scan((*[]byte)(&detail.Hash), &detail.AccountID, &block,
		(*[]byte)(&detail.Description), (*[]byte)(&detail.OrgCode))
	if errors.Is(err, sql.ErrNoRows) {
		return registry.AuthDetail{}, false, nil
	}
	if err != nil {
		return registry.AuthDetail{}, false, err
	}
	detail.BlockNumber = uint64(block)
	return detail, true, nil
}

func (d detailTable) Insert(ctx context.Context, hash []byte, detail registry.AuthDetail) error {
	return d.t.exec(ctx, `
		insert into auth_details(hash, account_id, block_number, description, org_code)
		values ($1, $2, $3, $4, $5)
		on conflict (hash) do update set
			account_id = excluded.account_id,
			block_number = excluded.block_number,
			description = excluded.description,
			org_code = excluded.org_code
	`, hash, detail.AccountID, int64(detail.BlockNumber), nonNil(detail.Description), nonNil(detail.OrgCode))
}

// nonNil maps a nil byte string to an empty one for NOT NULL bytea columns.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
