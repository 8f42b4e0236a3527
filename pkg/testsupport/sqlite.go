package testsupport

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// NewSQLiteDB opens an in-memory sqlite database private to the test and runs
// each schema statement on it.
func NewSQLiteDB(t *testing.T, schema ...string) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	sqldb, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes
	// transactions
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range schema {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("schema %q: %v", stmt, err)
		}
	}
	return db
}

// InsertRows inserts rows into table as maps.
func InsertRows(t *testing.T, db bun.IDB, table string, rows ...map[string]any) {
	t.Helper()

	for _, row := range rows {
		if _, err := db.NewInsert().Model(&row).TableExpr("?", bun.Ident(table)).Exec(context.Background()); err != nil {
			t.Fatalf("insert into %s: %v", table, err)
		}
	}
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, db bun.IDB, table string) int {
	t.Helper()

	n, err := db.NewSelect().Table(table).Count(context.Background())
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
