package pg

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"authright.org/internal/auth"
	"authright.org/internal/registry"
)

type fixedBlocks uint64

func (b fixedBlocks) BlockNumber() uint64 { return uint64(b) }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestRegisterInsertsOrganization(t *testing.T) {
	store, mock := newMockStore(t)
	reg := registry.New(store, fixedBlocks(1))

	mock.ExpectBegin()
	mock.ExpectQuery(`select exists\(select 1 from organizations where code = \$1\)`).
		WithArgs([]byte("ORG1")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`insert into organizations`).
		WithArgs([]byte("ORG1"), []byte("Acme"), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := reg.Register(context.Background(), auth.Signed("alice"), []byte("ORG1"), []byte("Acme")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterDuplicateRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	reg := registry.New(store, fixedBlocks(1))

	mock.ExpectBegin()
	mock.ExpectQuery(`select exists\(select 1 from organizations`).
		WithArgs([]byte("ORG1")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := reg.Register(context.Background(), auth.Signed("alice"), []byte("ORG1"), []byte("Acme"))
	if !errors.Is(err, registry.ErrOrganizationAlreadyExists) {
		t.Fatalf("expected ErrOrganizationAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimWritesRightAndDetailInOneTx(t *testing.T) {
	store, mock := newMockStore(t)
	reg := registry.New(store, fixedBlocks(77))

	mock.ExpectBegin()
	mock.ExpectQuery(`select exists\(select 1 from auth_rights where hash = \$1\)`).
		WithArgs([]byte("HASH1")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`select code, name, status from organizations where code = \$1`).
		WithArgs([]byte("ORG1")).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "status"}).AddRow([]byte("ORG1"), []byte("Acme"), true))
	mock.ExpectExec(`insert into auth_rights`).
		WithArgs([]byte("HASH1"), "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into auth_details`).
		WithArgs([]byte("HASH1"), "alice", int64(77), []byte("desc"), []byte("ORG1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	evt, err := reg.Claim(context.Background(), auth.Signed("alice"), []byte("HASH1"), []byte("desc"), []byte("ORG1"))
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if evt.Block != 77 {
		t.Fatalf("unexpected block %d", evt.Block)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimDetailFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	reg := registry.New(store, fixedBlocks(1))

	mock.ExpectBegin()
	mock.ExpectQuery(`select exists\(select 1 from auth_rights`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`select code, name, status from organizations`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "status"}).AddRow([]byte("ORG1"), []byte("Acme"), true))
	mock.ExpectExec(`insert into auth_rights`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into auth_details`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := reg.Claim(context.Background(), auth.Signed("alice"), []byte("HASH1"), nil, []byte("ORG1")); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimNotApprovedSkipsWrites(t *testing.T) {
	store, mock := newMockStore(t)
	reg := registry.New(store, fixedBlocks(1))

	mock.ExpectBegin()
	mock.ExpectQuery(`select exists\(select 1 from auth_rights`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`select code, name, status from organizations`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "status"}).AddRow([]byte("ORG2"), []byte("Beta"), false))
	mock.ExpectRollback()

	_, err := reg.Claim(context.Background(), auth.Signed("carol"), []byte("HASH2"), nil, []byte("ORG2"))
	if !errors.Is(err, registry.ErrOrganizationNotApproved) {
		t.Fatalf("expected ErrOrganizationNotApproved, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRetriesSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t)
	reg := registry.New(store, fixedBlocks(1))

	// First attempt loses the race at commit.
	mock.ExpectBegin()
	mock.ExpectQuery(`select exists\(select 1 from auth_rights`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`select code, name, status from organizations`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "status"}).AddRow([]byte("ORG1"), []byte("Acme"), true))
	mock.ExpectExec(`insert into auth_rights`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into auth_details`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: codeSerializationFailure})

	// Second attempt sees the winner's claim.
	mock.ExpectBegin()
	mock.ExpectQuery(`select exists\(select 1 from auth_rights`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := reg.Claim(context.Background(), auth.Signed("bob"), []byte("HASH1"), nil, []byte("ORG1"))
	if !errors.Is(err, registry.ErrClaimAlreadyExists) {
		t.Fatalf("expected ErrClaimAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthDetailQuery(t *testing.T) {
	store, mock := newMockStore(t)
	reg := registry.New(store, fixedBlocks(1))

	mock.ExpectBegin()
	mock.ExpectQuery(`select hash, account_id, block_number, description, org_code`).
		WithArgs([]byte("HASH1")).
		WillReturnRows(sqlmock.NewRows([]string{"hash", "account_id", "block_number", "description", "org_code"}).
			AddRow([]byte("HASH1"), "alice", int64(12), []byte("desc"), []byte("ORG1")))
	mock.ExpectCommit()

	detail, err := reg.AuthDetail(context.Background(), []byte("HASH1"))
	if err != nil {
		t.Fatalf("AuthDetail: %v", err)
	}
	if detail.AccountID != "alice" || detail.BlockNumber != 12 || detail.OrgCode.String() != "ORG1" {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`select account_id from auth_rights`).
		WithArgs([]byte("MISSING")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	if _, err := reg.AuthRight(context.Background(), []byte("MISSING")); !errors.Is(err, registry.ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestViewRejectsWrites(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.View(context.Background(), func(tx registry.Tx) error {
		return tx.AuthRights().Insert(context.Background(), []byte("H"), "alice")
	})
	if !errors.Is(err, registry.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChainHead(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select height from chain_head`).WillReturnError(sql.ErrNoRows)
	h, err := store.LoadHead(context.Background())
	if err != nil || h != 0 {
		t.Fatalf("LoadHead = %d, %v", h, err)
	}

	mock.ExpectExec(`insert into chain_head`).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.SaveHead(context.Background(), 9); err != nil {
		t.Fatalf("SaveHead: %v", err)
	}

	mock.ExpectQuery(`select height from chain_head`).
		WillReturnRows(sqlmock.NewRows([]string{"height"}).AddRow(int64(9)))
	h, err = store.LoadHead(context.Background())
	if err != nil || h != 9 {
		t.Fatalf("LoadHead = %d, %v", h, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(Migrations, MigrationsDir+"/*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected embedded migrations, got %v", names)
	}
}
