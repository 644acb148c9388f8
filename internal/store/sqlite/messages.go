package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

const (
	receiptDelivered = "delivered"
	receiptRead      = "read"
)

// CreateMessage persists msg, assigning ID and CreatedAt.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	nanos := s.now().UnixNano()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO messages (room, sender, text, attachment_ref, reply_to, edited, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)
		`
		result, err := tx.ExecContext(ctx, query, msg.Room, msg.Sender, msg.Text, msg.AttachmentRef, msg.ReplyTo, nanos)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}

		// No-op unless the room is a conversation.
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?`,
			id, nanos, msg.Room,
		); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		msg.ID = id
		msg.CreatedAt = fromNanos(nanos)
		msg.Edited = false
		msg.Reactions = []store.Reaction{}
		msg.DeliveredTo = []string{}
		msg.ReadBy = []string{}
		return nil
	})
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	return loadMessage(ctx, s.db, id)
}

// ListMessages returns messages of a room ordered by creation time, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, room string, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, room, sender, text, attachment_ref, reply_to, edited, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	args := []any{room, limit}
	if beforeID != nil {
		// The cursor follows the (created_at, id) order of the page, not the id alone,
		// so a clock step between inserts cannot skip or repeat rows.
		var cursorNanos int64
		err := s.db.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE id = ?`, *beforeID).Scan(&cursorNanos)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Cursor message is gone; fall back to id order.
			query = `
				SELECT id, room, sender, text, attachment_ref, reply_to, edited, created_at
				FROM messages
				WHERE room = ? AND id < ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			`
			args = []any{room, *beforeID, limit}
		case err != nil:
			return nil, fmt.Errorf("query cursor: %w", err)
		default:
			query = `
				SELECT id, room, sender, text, attachment_ref, reply_to, edited, created_at
				FROM messages
				WHERE room = ? AND (created_at < ? OR (created_at = ? AND id < ?))
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			`
			args = []any{room, cursorNanos, cursorNanos, *beforeID, limit}
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	rows.Close()

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	for _, msg := range messages {
		if err := loadAcks(ctx, s.db, msg); err != nil {
			return nil, err
		}
	}

	return messages, nil
}

// UpdateMessageText replaces the text and marks the message as edited.
func (s *SQLiteStore) UpdateMessageText(ctx context.Context, id int64, text string) (*store.Message, error) {
	var msg *store.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE messages SET text = ?, edited = 1 WHERE id = ?`, text, id)
		if err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}

		msg, err = loadMessage(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage hard-deletes a message with its reactions and receipts.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var room string
		if err := tx.QueryRowContext(ctx, `SELECT room FROM messages WHERE id = ?`, id).Scan(&room); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
			}
			return fmt.Errorf("query message: %w", err)
		}

		for _, query := range []string{
			`DELETE FROM message_reactions WHERE message_id = ?`,
			`DELETE FROM message_receipts WHERE message_id = ?`,
			`DELETE FROM messages WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("delete message: %w", err)
			}
		}

		query := `
			UPDATE conversations
			SET last_message_id = (
				SELECT id FROM messages WHERE room = ? ORDER BY created_at DESC, id DESC LIMIT 1
			)
			WHERE id = ? AND last_message_id = ?
		`
		if _, err := tx.ExecContext(ctx, query, room, room, id); err != nil {
			return fmt.Errorf("refresh last message: %w", err)
		}
		return nil
	})
}

// ToggleReaction adds, removes or replaces identity's reaction on a message.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, id int64, identity, emoji string) (*store.Message, error) {
	var msg *store.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureMessage(ctx, tx, id); err != nil {
			return err
		}

		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT emoji FROM message_reactions WHERE message_id = ? AND identity = ?`,
			id, identity,
		).Scan(&existing)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO message_reactions (message_id, identity, emoji, created_at) VALUES (?, ?, ?, ?)`,
				id, identity, emoji, s.now().UnixNano(),
			)
		case err != nil:
			return fmt.Errorf("query reaction: %w", err)
		case existing == emoji:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM message_reactions WHERE message_id = ? AND identity = ?`,
				id, identity,
			)
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE message_reactions SET emoji = ?, created_at = ? WHERE message_id = ? AND identity = ?`,
				emoji, s.now().UnixNano(), id, identity,
			)
		}
		if err != nil {
			return fmt.Errorf("write reaction: %w", err)
		}

		msg, err = loadMessage(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkDelivered adds identity to the delivered set.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id int64, identity string) (*store.Message, error) {
	return s.addReceipts(ctx, id, identity, receiptDelivered)
}

// MarkRead adds identity to the read set. Reading implies delivery.
func (s *SQLiteStore) MarkRead(ctx context.Context, id int64, identity string) (*store.Message, error) {
	return s.addReceipts(ctx, id, identity, receiptDelivered, receiptRead)
}

func (s *SQLiteStore) addReceipts(ctx context.Context, id int64, identity string, kinds ...string) (*store.Message, error) {
	var msg *store.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureMessage(ctx, tx, id); err != nil {
			return err
		}

		nanos := s.now().UnixNano()
		for _, kind := range kinds {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO message_receipts (message_id, identity, kind, created_at) VALUES (?, ?, ?, ?)`,
				id, identity, kind, nanos,
			); err != nil {
				return fmt.Errorf("insert receipt: %w", err)
			}
		}

		var err error
		msg, err = loadMessage(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func ensureMessage(ctx context.Context, q querier, id int64) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return fmt.Errorf("query message: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg     store.Message
		replyTo sql.NullInt64
		nanos   int64
	)
	err := row.Scan(
		&msg.ID,
		&msg.Room,
		&msg.Sender,
		&msg.Text,
		&msg.AttachmentRef,
		&replyTo,
		&msg.Edited,
		&nanos,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}

	if replyTo.Valid {
		msg.ReplyTo = &replyTo.Int64
	}
	msg.CreatedAt = fromNanos(nanos)
	return &msg, nil
}

func loadMessage(ctx context.Context, q querier, id int64) (*store.Message, error) {
	query := `
		SELECT id, room, sender, text, attachment_ref, reply_to, edited, created_at
		FROM messages
		WHERE id = ?
	`
	msg, err := scanMessage(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadAcks(ctx, q, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// loadAcks materializes reactions and receipt sets of msg.
func loadAcks(ctx context.Context, q querier, msg *store.Message) error {
	msg.Reactions = []store.Reaction{}
	msg.DeliveredTo = []string{}
	msg.ReadBy = []string{}

	rows, err := q.QueryContext(ctx,
		`SELECT identity, emoji FROM message_reactions WHERE message_id = ? ORDER BY created_at, identity`,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	for rows.Next() {
		var r store.Reaction
		if err := rows.Scan(&r.Identity, &r.Emoji); err != nil {
			rows.Close()
			return fmt.Errorf("scan reaction: %w", err)
		}
		msg.Reactions = append(msg.Reactions, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate reactions: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx,
		`SELECT identity, kind FROM message_receipts WHERE message_id = ? ORDER BY created_at, identity`,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity, kind string
		if err := rows.Scan(&identity, &kind); err != nil {
			return fmt.Errorf("scan receipt: %w", err)
		}
		switch kind {
		case receiptDelivered:
			msg.DeliveredTo = append(msg.DeliveredTo, identity)
		case receiptRead:
			msg.ReadBy = append(msg.ReadBy, identity)
		}
	}
	return rows.Err()
}
