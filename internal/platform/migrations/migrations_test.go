package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
)

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS transactions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS profiles").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(".*").WillReturnError(errors.New("permission denied"))

	err = Apply(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "0001_orders") {
		t.Fatalf("Apply() error = %v, want failure naming 0001_orders", err)
	}
}

func TestEveryUpHasDown(t *testing.T) {
	ups, _ := fs.Glob(files, "sql/*.up.sql")
	downs, _ := fs.Glob(files, "sql/*.down.sql")
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Fatalf("up=%d down=%d, want equal and non-zero", len(ups), len(downs))
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(files, down); err != nil {
			t.Errorf("%s has no matching down migration", up)
		}
	}
}

func TestPaymentIDIsUnique(t *testing.T) {
	stmts, err := Statements()
	if err != nil {
		t.Fatalf("Statements() error = %v", err)
	}
	for _, s := range stmts {
		if s.Name == "0002_transactions" && strings.Contains(s.SQL, "UNIQUE INDEX IF NOT EXISTS transactions_razorpay_payment_id_key") {
			return
		}
	}
	t.Fatal("transactions migration must enforce a unique razorpay_payment_id")
}

func TestUpIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres migration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	v, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != 3 || dirty {
		t.Errorf("version = %d dirty=%v, want 3 clean", v, dirty)
	}
}
