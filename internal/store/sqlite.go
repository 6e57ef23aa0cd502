package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.io/infrasutra/inboxsweep/internal/subscription"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = sql.ErrNoRows

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS imports (
            id TEXT PRIMARY KEY,
            source TEXT NOT NULL,
            raw_text TEXT NOT NULL,
            path TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
            id TEXT PRIMARY KEY,
            import_id TEXT NOT NULL,
            position INTEGER NOT NULL,
            sender TEXT NOT NULL,
            email TEXT NOT NULL,
            count INTEGER NOT NULL,
            subject TEXT NOT NULL,
            unsubscribe_link TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            updated_at INTEGER NOT NULL,
            FOREIGN KEY(import_id) REFERENCES imports(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS subscription_messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            subscription_id TEXT NOT NULL,
            position INTEGER NOT NULL,
            sender TEXT NOT NULL,
            email TEXT NOT NULL,
            subject TEXT NOT NULL,
            unsubscribe_link TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL,
            FOREIGN KEY(subscription_id) REFERENCES subscriptions(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS inbox_messages (
            id TEXT PRIMARY KEY,
            from_email TEXT NOT NULL,
            subject TEXT NOT NULL,
            section TEXT NOT NULL,
            raw BLOB NOT NULL,
            raw_size INTEGER NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_imports_created ON imports(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_import ON subscriptions(import_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_import_status ON subscriptions(import_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_subscription_messages_sub ON subscription_messages(subscription_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_inbox_messages_created ON inbox_messages(created_at);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// InsertImport stores an import together with the subscriptions it produced.
func (s *Store) InsertImport(ctx context.Context, imp Import, subs []subscription.Subscription) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO imports (id, source, raw_text, path, created_at)
        VALUES (?, ?, ?, ?, ?);`,
		imp.ID, imp.Source, imp.RawText, imp.Path, imp.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert import: %w", err)
	}

	for i, sub := range subs {
		_, err = tx.ExecContext(ctx, `INSERT INTO subscriptions
            (id, import_id, position, sender, email, count, subject, unsubscribe_link, status, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			sub.ID,
			imp.ID,
			i,
			sub.Sender,
			sub.Address,
			sub.Count,
			sub.Subject,
			sub.UnsubscribeLink,
			string(sub.Status),
			imp.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		for j, message := range sub.Messages {
			_, err = tx.ExecContext(ctx, `INSERT INTO subscription_messages
                (subscription_id, position, sender, email, subject, unsubscribe_link, body)
                VALUES (?, ?, ?, ?, ?, ?, ?);`,
				sub.ID, j, message.Sender, message.Address, message.Subject, message.UnsubscribeLink, message.Body)
			if err != nil {
				return fmt.Errorf("insert subscription message: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// LatestImport returns the most recent import, the "last imported text".
func (s *Store) LatestImport(ctx context.Context) (Import, error) {
	var imp Import
	var createdAt int64
	row := s.db.QueryRowContext(ctx, `SELECT i.id, i.source, i.raw_text, i.path, i.created_at,
        (SELECT COUNT(1) FROM subscriptions s WHERE s.import_id = i.id)
        FROM imports i
        ORDER BY i.created_at DESC, i.rowid DESC
        LIMIT 1;`)
	if err := row.Scan(&imp.ID, &imp.Source, &imp.RawText, &imp.Path, &createdAt, &imp.SubscriptionCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Import{}, ErrNotFound
		}
		return Import{}, fmt.Errorf("latest import: %w", err)
	}
	imp.CreatedAt = time.Unix(createdAt, 0)
	return imp, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, filter SubscriptionFilter, offset, limit int32) ([]subscription.Subscription, int32, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	whereQuery := " WHERE s.import_id = ?"
	args := []any{filter.ImportID}

	if filter.Status != "" {
		whereQuery += " AND s.status = ?"
		args = append(args, string(filter.Status))
	}

	search := strings.TrimSpace(filter.Search)
	if search != "" {
		whereQuery += ` AND (s.sender LIKE ? ESCAPE '\' OR s.email LIKE ? ESCAPE '\' OR s.subject LIKE ? ESCAPE '\')`
		term := "%" + likeEscaper.Replace(search) + "%"
		args = append(args, term, term, term)
	}

	countQuery := "SELECT COUNT(1) FROM subscriptions s" + whereQuery
	var totalCount int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("count subscriptions: %w", err)
	}
	if totalCount > int64(^uint32(0)>>1) {
		totalCount = int64(^uint32(0) >> 1)
	}

	orderBy := " ORDER BY s.position ASC"
	switch filter.Sort {
	case "count":
		orderBy = " ORDER BY s.count DESC, s.position ASC"
	case "sender":
		orderBy = " ORDER BY s.sender COLLATE NOCASE ASC, s.position ASC"
	case "status":
		orderBy = " ORDER BY s.status ASC, s.position ASC"
	}

	listQuery := `SELECT s.id, s.sender, s.email, s.count, s.subject, s.unsubscribe_link, s.status
        FROM subscriptions s` + whereQuery + orderBy + " LIMIT ? OFFSET ?"
	listArgs := append([]any{}, args...)
	listArgs = append(listArgs, limit, offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []subscription.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, int32(totalCount), nil
}

// GetSubscription loads one subscription with its messages.
func (s *Store) GetSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, sender, email, count, subject, unsubscribe_link, status
        FROM subscriptions WHERE id = ?;`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subscription.Subscription{}, ErrNotFound
		}
		return subscription.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}

	messages, err := s.getSubscriptionMessages(ctx, id)
	if err != nil {
		return subscription.Subscription{}, err
	}
	sub.Messages = messages
	return sub, nil
}

// UpdateStatus moves a subscription from one status to another. It reports
// false when the subscription is missing or not in the from status.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to subscription.Status, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET status = ?, updated_at = ?
        WHERE id = ? AND status = ?;`, string(to), now.Unix(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return rows > 0, nil
}

// SubscriptionIDs returns the ids of an import's subscriptions with the given status.
func (s *Store) SubscriptionIDs(ctx context.Context, importID string, status subscription.Status) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM subscriptions
        WHERE import_id = ? AND status = ? ORDER BY position;`, importID, string(status))
	if err != nil {
		return nil, fmt.Errorf("subscription ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("subscription ids: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("subscription ids: %w", err)
	}
	return ids, nil
}

// Summary totals the subscriptions of an import by status. EmailsCleaned is
// the number of messages from unsubscribed senders.
func (s *Store) Summary(ctx context.Context, importID string) (Summary, error) {
	var summary Summary
	row := s.db.QueryRowContext(ctx, `SELECT
            COUNT(1),
            COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = 'unsubscribed' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = 'unsubscribed' THEN count ELSE 0 END), 0)
        FROM subscriptions WHERE import_id = ?;`, importID)
	if err := row.Scan(
		&summary.Subscriptions,
		&summary.Active,
		&summary.Pending,
		&summary.Unsubscribed,
		&summary.EmailsCleaned,
	); err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	return summary, nil
}

func (s *Store) InsertInboxMessage(ctx context.Context, message InboxMessage) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO inbox_messages
        (id, from_email, subject, section, raw, raw_size, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?);`,
		message.ID,
		message.From,
		message.Subject,
		message.Section,
		message.Raw,
		message.RawSize,
		message.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert inbox message: %w", err)
	}
	return nil
}

// ListInboxMessages returns intake messages oldest first, without raw bytes.
func (s *Store) ListInboxMessages(ctx context.Context) ([]InboxMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, from_email, subject, section, raw_size, created_at
        FROM inbox_messages ORDER BY created_at ASC, rowid ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list inbox messages: %w", err)
	}
	defer rows.Close()

	messages := []InboxMessage{}
	for rows.Next() {
		var message InboxMessage
		var createdAt int64
		if err := rows.Scan(&message.ID, &message.From, &message.Subject, &message.Section, &message.RawSize, &createdAt); err != nil {
			return nil, fmt.Errorf("list inbox messages: %w", err)
		}
		message.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list inbox messages: %w", err)
	}
	return messages, nil
}

func (s *Store) ClearInbox(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM inbox_messages;`)
	if err != nil {
		return 0, fmt.Errorf("clear inbox: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear inbox: %w", err)
	}
	return rows, nil
}

func (s *Store) getSubscriptionMessages(ctx context.Context, subscriptionID string) ([]subscription.ParsedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sender, email, subject, unsubscribe_link, body
        FROM subscription_messages WHERE subscription_id = ? ORDER BY position;`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("get subscription messages: %w", err)
	}
	defer rows.Close()

	messages := []subscription.ParsedMessage{}
	for rows.Next() {
		var message subscription.ParsedMessage
		if err := rows.Scan(&message.Sender, &message.Address, &message.Subject, &message.UnsubscribeLink, &message.Body); err != nil {
			return nil, fmt.Errorf("get subscription messages: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get subscription messages: %w", err)
	}
	return messages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func scanSubscription(row scanner) (subscription.Subscription, error) {
	var sub subscription.Subscription
	var status string
	if err := row.Scan(
		&sub.ID,
		&sub.Sender,
		&sub.Address,
		&sub.Count,
		&sub.Subject,
		&sub.UnsubscribeLink,
		&status,
	); err != nil {
		return subscription.Subscription{}, err
	}
	sub.Status = subscription.Status(status)
	return sub, nil
}
