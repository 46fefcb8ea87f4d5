package pieces

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRows serves canned piece_types rows through the pgx.Rows interface.
type fakeRows struct {
	data   [][]any
	idx    int
	closed bool
	err    error
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: want %d columns, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = row[i].(int)
		case *string:
			*p = row[i].(string)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type fakeDB struct {
	rows     *fakeRows
	queryErr error
	execs    []string
	args     [][]any
}

func (db *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return db.rows, nil
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	db.args = append(db.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestLoadCatalogDB(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{data: [][]any{
		{1, "Warden", "RestrictArea", 1},
		{15, "Blinker", "Active_TeleportAlly", 0},
	}}}

	c, err := LoadCatalogDB(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.True(t, db.rows.closed)

	p, err := c.Get(15)
	require.NoError(t, err)
	assert.Equal(t, ActiveTeleportAlly, p.Passive)
	assert.Equal(t, "Blinker", p.Name)
}

func TestLoadCatalogDBErrors(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := LoadCatalogDB(context.Background(), &fakeDB{queryErr: boom})
	assert.ErrorIs(t, err, boom)

	_, err = LoadCatalogDB(context.Background(), &fakeDB{rows: &fakeRows{}})
	assert.ErrorIs(t, err, ErrInvalidPiece)

	_, err = LoadCatalogDB(context.Background(), &fakeDB{rows: &fakeRows{data: [][]any{
		{1, "Odd", "Meteor", 0},
	}}})
	assert.ErrorIs(t, err, ErrUnknownPassive)
}

func TestStoreCatalogDB(t *testing.T) {
	db := &fakeDB{}
	n, err := StoreCatalogDB(context.Background(), db, Default())
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), n)
	require.Len(t, db.execs, n+1)
	assert.True(t, strings.HasPrefix(db.execs[0], "CREATE TABLE"))
	assert.Equal(t, []any{1, "Warden", "RestrictArea", 1}, db.args[1])
}
