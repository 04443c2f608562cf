package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	uid        TEXT PRIMARY KEY,
	entity     TEXT NOT NULL,
	summary    TEXT NOT NULL,
	status     TEXT NOT NULL,
	due        TEXT NOT NULL DEFAULT '',
	position   INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS items_entity_position ON items(entity, position);
`

// SQLiteStore keeps lists in a SQLite database. It stands in for the
// home-automation host when todomagic runs standalone.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the items table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = sqliteDSN(dbPath)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.ensureColumns(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ensureColumns adds columns introduced after the first schema.
func (s *SQLiteStore) ensureColumns() error {
	required := map[string]string{
		"description": "ALTER TABLE items ADD COLUMN description TEXT NOT NULL DEFAULT '';",
	}
	rows, err := s.db.Query(`PRAGMA table_info(items);`)
	if err != nil {
		return err
	}
	existing := map[string]struct{}{}
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	for col, alter := range required {
		if _, ok := existing[col]; ok {
			continue
		}
		if _, err := s.db.Exec(alter); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// Lists returns the entities that hold at least one item.
func (s *SQLiteStore) Lists(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT entity FROM items ORDER BY entity`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetItems returns the items of entity in list order.
func (s *SQLiteStore) GetItems(ctx context.Context, entity string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, summary, status, due, description FROM items
		WHERE entity = ? ORDER BY position, created_at`, entity)
	if err != nil {
		return nil, fmt.Errorf("get items %s: %w", entity, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var status string
		if err := rows.Scan(&it.UID, &it.Summary, &status, &it.Due, &it.Description); err != nil {
			return nil, err
		}
		it.Status = Status(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

// AddItem appends a needs_action item to entity.
func (s *SQLiteStore) AddItem(ctx context.Context, entity string, req AddRequest) error {
	if strings.TrimSpace(req.Summary) == "" {
		return fmt.Errorf("add item: summary is empty")
	}
	var pos int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM items WHERE entity = ?`, entity,
	).Scan(&pos); err != nil {
		return fmt.Errorf("next position: %w", err)
	}
	due := ""
	if req.Due != nil {
		due = req.Due.String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (uid, entity, summary, status, due, description, position, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), entity, req.Summary, string(StatusNeedsAction), due, "", pos, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// UpdateItem changes the first item matching req.Match by uid or summary.
func (s *SQLiteStore) UpdateItem(ctx context.Context, entity string, req UpdateRequest) error {
	uid, err := s.resolve(ctx, entity, req.Match)
	if err != nil {
		return err
	}

	q := strings.Builder{}
	q.WriteString("UPDATE items SET updated_at=?")
	args := []any{time.Now().UTC()}
	if req.Rename != nil {
		q.WriteString(", summary=?")
		args = append(args, *req.Rename)
	}
	if req.Status != nil {
		q.WriteString(", status=?")
		args = append(args, string(*req.Status))
	}
	if req.Due != nil {
		q.WriteString(", due=?")
		args = append(args, req.Due.String())
	}
	q.WriteString(" WHERE uid=?")
	args = append(args, uid)

	if _, err := s.db.ExecContext(ctx, q.String(), args...); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// RemoveItem deletes the first item matching match by uid or summary.
func (s *SQLiteStore) RemoveItem(ctx context.Context, entity, match string) error {
	uid, err := s.resolve(ctx, entity, match)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE uid=?", uid); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// RemoveCompleted deletes every completed item of entity.
func (s *SQLiteStore) RemoveCompleted(ctx context.Context, entity string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM items WHERE entity=? AND status=?", entity, string(StatusCompleted))
	if err != nil {
		return fmt.Errorf("remove completed: %w", err)
	}
	return nil
}

// MoveItem places uid directly after previousUID, or first when previousUID is empty.
func (s *SQLiteStore) MoveItem(ctx context.Context, entity, uid, previousUID string) error {
	items, err := s.GetItems(ctx, entity)
	if err != nil {
		return err
	}
	order := make([]string, 0, len(items))
	found := false
	for _, it := range items {
		if it.UID == uid {
			found = true
			continue
		}
		order = append(order, it.UID)
	}
	if !found {
		return fmt.Errorf("move %s in %s: %w", uid, entity, ErrNotFound)
	}

	at := 0
	if previousUID != "" {
		at = -1
		for i, id := range order {
			if id == previousUID {
				at = i + 1
				break
			}
		}
		if at < 0 {
			return fmt.Errorf("move after %s in %s: %w", previousUID, entity, ErrNotFound)
		}
	}
	order = append(order[:at], append([]string{uid}, order[at:]...)...)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for pos, id := range order {
		if _, err := tx.ExecContext(ctx, "UPDATE items SET position=? WHERE uid=?", pos, id); err != nil {
			return fmt.Errorf("reposition %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// State returns the number of needs_action items of entity.
func (s *SQLiteStore) State(ctx context.Context, entity string) (string, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM items WHERE entity=? AND status=?", entity, string(StatusNeedsAction),
	).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("count items %s: %w", entity, err)
	}
	return strconv.Itoa(n), nil
}

// resolve finds the uid of the item addressed by match, preferring a uid hit
// over a summary hit and earlier positions over later ones.
func (s *SQLiteStore) resolve(ctx context.Context, entity, match string) (string, error) {
	var uid string
	err := s.db.QueryRowContext(ctx, `
		SELECT uid FROM items
		WHERE entity = ? AND (uid = ? OR summary = ?)
		ORDER BY (uid = ?) DESC, position LIMIT 1`,
		entity, match, match, match,
	).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("item %q in %s: %w", match, entity, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve item: %w", err)
	}
	return uid, nil
}

// sqliteDSN builds a file URI with a busy timeout so concurrent readers wait
// instead of failing.
func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: path}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
