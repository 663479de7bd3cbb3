package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// Fails the build if *DB stops satisfying repository.SnippetRepository.
var _ repository.SnippetRepository = (*DB)(nil)

const snippetColumns = `id, short_id, name, content, language, created_at, updated_at`

// Create inserts a new snippet. The caller assigns ShortID; Create assigns
// ID and the timestamps on the passed-in struct.
//
// UNIQUENESS:
// The short_id UNIQUE constraint is the arbiter. Two concurrent inserts
// with the same ShortID cannot both succeed; the loser gets an
// apperror.Conflict and the service layer retries with a fresh identifier.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	now := time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets (short_id, name, content, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snippet.ShortID,
		snippet.Name,
		snippet.Content,
		snippet.Language,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("snippet", snippet.ShortID)
		}
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted id: %w", err)
	}

	snippet.ID = id
	snippet.CreatedAt = now
	snippet.UpdatedAt = now
	return nil
}

// GetByShortID retrieves a single snippet by exact short identifier match.
func (db *DB) GetByShortID(ctx context.Context, shortID string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+`
		 FROM snippets
		 WHERE short_id = ?`,
		shortID,
	)

	snippet, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", shortID)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", shortID, err)
	}
	return snippet, nil
}

// List returns snippets newest first (by insertion order).
//
// FILTERING:
// The substring match is case-insensitive in the Unicode sense, which
// SQLite's lower() is not: it folds ASCII only. When the needle is ASCII
// and holds no letter that a non-ASCII rune lowers to (K for the Kelvin
// sign, I for dotted capital I), both foldings agree and SQL does the
// whole filter. Any other needle is matched in Go over every row.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	inSQL := opts.Filter == "" || foldsLikeSQLite(opts.Filter)

	query := `SELECT ` + snippetColumns + ` FROM snippets`
	var args []any
	if opts.Filter != "" && inSQL {
		needle := strings.ToLower(opts.Filter)
		query += ` WHERE instr(lower(name), ?) > 0 OR instr(lower(content), ?) > 0`
		args = append(args, needle, needle)
	}
	query += ` ORDER BY id DESC`
	if inSQL && (opts.Limit > 0 || offset > 0) {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1 // SQLite: no limit
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	if inSQL {
		return snippets, nil
	}
	return window(filter(snippets, opts.Filter), offset, opts.Limit), nil
}

// foldsLikeSQLite reports whether SQLite's ASCII lower() matches needle
// exactly as strings.ToLower would.
func foldsLikeSQLite(needle string) bool {
	for i := 0; i < len(needle); i++ {
		switch c := needle[i]; {
		case c >= 0x80:
			return false
		case c == 'k', c == 'K', c == 'i', c == 'I':
			return false
		}
	}
	return true
}

// Update writes Name and Content back. ShortID, Language and CreatedAt are
// immutable and never part of the SET clause.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	now := time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET name = ?, content = ?, updated_at = ?
		 WHERE short_id = ?`,
		snippet.Name,
		snippet.Content,
		now,
		snippet.ShortID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ShortID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", snippet.ShortID)
	}

	snippet.UpdatedAt = now
	return nil
}

// Delete hard-deletes a snippet. It reports false, not an error, when no
// row matched.
func (db *DB) Delete(ctx context.Context, shortID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE short_id = ?`,
		shortID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting snippet %s: %w", shortID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row rowScanner) (*model.Snippet, error) {
	var s model.Snippet
	if err := row.Scan(
		&s.ID, &s.ShortID, &s.Name, &s.Content, &s.Language,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func filter(snippets []model.Snippet, query string) []model.Snippet {
	q := strings.ToLower(query)
	out := snippets[:0]
	for _, s := range snippets {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.Content), q) {
			out = append(out, s)
		}
	}
	return out
}

func window(snippets []model.Snippet, offset, limit int) []model.Snippet {
	if offset >= len(snippets) {
		return []model.Snippet{}
	}
	snippets = snippets[offset:]
	if limit > 0 && limit < len(snippets) {
		snippets = snippets[:limit]
	}
	return snippets
}

// isUniqueViolation recognises SQLite's UNIQUE constraint failure. The
// extended code is checked first; the primary code plus message is a
// fallback for connections without extended result codes.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}
