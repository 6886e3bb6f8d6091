package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/brightminds/internal/store"
)

var _ store.Tx = (*Tx)(nil)

// querier is satisfied by both *sql.DB and *sql.Conn, so reads share one
// implementation inside and outside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx runs on the connection that issued BEGIN IMMEDIATE. SQLite gives it
// read-your-writes for free.
type Tx struct {
	conn  *sql.Conn
	clock func() time.Time
}

func (tx *Tx) Get(ctx context.Context, ref store.Ref, dst any) error {
	return get(ctx, tx.conn, ref, dst)
}

func (tx *Tx) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	return query(ctx, tx.conn, q)
}

// Set upserts the document. ON CONFLICT keeps the primary key row and swaps
// the body in place.
func (tx *Tx) Set(ctx context.Context, ref store.Ref, doc any) error {
	now := tx.clock()
	data, err := store.Encode(doc, now)
	if err != nil {
		return err
	}
	_, err = tx.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		ref.Collection, ref.ID, string(data), now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing %s: %w", ref, err)
	}
	return nil
}

func (tx *Tx) Delete(ctx context.Context, ref store.Ref) error {
	_, err := tx.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection, ref.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s: %w", ref, err)
	}
	return nil
}

func get(ctx context.Context, q querier, ref store.Ref, dst any) error {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection, ref.ID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNoDocument
	}
	if err != nil {
		return fmt.Errorf("sqlite: reading %s: %w", ref, err)
	}
	return store.Decode(ref, []byte(data), dst)
}

func query(ctx context.Context, db querier, q store.Query) ([]store.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	args := []any{q.Collection}
	for _, f := range q.Filters {
		// Field names are checked by Validate, so interpolating them is safe.
		fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') = ?`, f.Field)
		args = append(args, sqlArg(f.Value))
	}
	sb.WriteString(` ORDER BY id`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []store.Snapshot
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", q.Collection, err)
		}
		out = append(out, store.Snapshot{Ref: store.Doc(q.Collection, id), Data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s rows: %w", q.Collection, err)
	}
	return out, nil
}

// sqlArg converts a filter value to what json_extract yields for it.
// JSON true/false come back as the integers 1/0.
func sqlArg(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}
