package pieces

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the read side of *pgxpool.Pool and *pgx.Conn.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Execer is the write side of *pgxpool.Pool and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	createPieceTableSQL = `CREATE TABLE IF NOT EXISTS piece_types (
	id          INTEGER PRIMARY KEY,
	name        TEXT    NOT NULL,
	passive     TEXT    NOT NULL,
	energy_cost INTEGER NOT NULL DEFAULT 0 CHECK (energy_cost >= 0)
)`

	selectPiecesSQL = `SELECT id, name, passive, energy_cost FROM piece_types ORDER BY id`

	upsertPieceSQL = `INSERT INTO piece_types (id, name, passive, energy_cost)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, passive = EXCLUDED.passive, energy_cost = EXCLUDED.energy_cost`
)

// LoadCatalogDB reads the piece_types table into a catalog.
func LoadCatalogDB(ctx context.Context, q Querier) (*Catalog, error) {
	rows, err := q.Query(ctx, selectPiecesSQL)
	if err != nil {
		return nil, fmt.Errorf("query piece_types: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanPieceRow)
	if err != nil {
		return nil, fmt.Errorf("scan piece_types: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: piece_types is empty", ErrInvalidPiece)
	}
	return NewCatalog(entries)
}

func scanPieceRow(row pgx.CollectableRow) (PieceType, error) {
	var (
		p       PieceType
		passive string
	)
	if err := row.Scan(&p.ID, &p.Name, &passive, &p.EnergyCost); err != nil {
		return PieceType{}, err
	}
	v, err := ParsePassive(passive)
	if err != nil {
		return PieceType{}, err
	}
	p.Passive = v
	return p, nil
}

// StoreCatalogDB creates the table if needed and upserts every entry. Returns the number
// of rows written.
func StoreCatalogDB(ctx context.Context, db Execer, c *Catalog) (int, error) {
	if _, err := db.Exec(ctx, createPieceTableSQL); err != nil {
		return 0, fmt.Errorf("create piece_types: %w", err)
	}
	written := 0
	for _, p := range c.All() {
		if _, err := db.Exec(ctx, upsertPieceSQL, p.ID, p.Name, p.Passive.String(), p.EnergyCost); err != nil {
			return written, fmt.Errorf("upsert piece %d: %w", p.ID, err)
		}
		written++
	}
	return written, nil
}
