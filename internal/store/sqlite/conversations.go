package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

const conversationColumns = `id, is_group, name, direct_key, last_message_id, created_at, updated_at`

// CreateDirectConversation creates a direct conversation between two identities.
// Handles deduplication via directKey and adds both identities as participants.
func (s *SQLiteStore) CreateDirectConversation(ctx context.Context, directKey, identityA, identityB string) (*store.Conversation, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		nanos := s.now().UnixNano()
		query := `
			INSERT OR IGNORE INTO conversations (id, is_group, name, direct_key, created_at, updated_at)
			VALUES (?, 0, '', ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query, uuid.NewString(), directKey, nanos, nanos)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil || n == 0 {
			// Already exists.
			return nil
		}

		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE direct_key = ?`, directKey).Scan(&id); err != nil {
			return fmt.Errorf("query conversation: %w", err)
		}
		return addParticipants(ctx, tx, id, []string{identityA, identityB})
	})
	if err != nil {
		return nil, err
	}

	return s.GetConversationByDirectKey(ctx, directKey)
}

// CreateGroupConversation creates a named group conversation.
func (s *SQLiteStore) CreateGroupConversation(ctx context.Context, name string, participants []string) (*store.Conversation, error) {
	id := uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		nanos := s.now().UnixNano()
		query := `
			INSERT INTO conversations (id, is_group, name, direct_key, created_at, updated_at)
			VALUES (?, 1, ?, NULL, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, query, id, name, nanos, nanos); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		return addParticipants(ctx, tx, id, participants)
	})
	if err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadParticipants(ctx, s.db, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversationByDirectKey retrieves a direct conversation by its direct_key.
func (s *SQLiteStore) GetConversationByDirectKey(ctx context.Context, directKey string) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE direct_key = ?`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, directKey))
	if err != nil {
		return nil, err
	}
	if err := loadParticipants(ctx, s.db, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations lists conversations the identity participates in.
func (s *SQLiteStore) ListConversations(ctx context.Context, identity string) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.direct_key, c.last_message_id, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.identity = ?
		ORDER BY c.updated_at DESC, c.id
	`
	rows, err := s.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	var conversations []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	rows.Close()

	for _, conv := range conversations {
		if err := loadParticipants(ctx, s.db, conv); err != nil {
			return nil, err
		}
	}
	return conversations, nil
}

// DeleteConversation removes the conversation, its participants and all of its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
		}

		for _, query := range []string{
			`DELETE FROM message_reactions WHERE message_id IN (SELECT id FROM messages WHERE room = ?)`,
			`DELETE FROM message_receipts WHERE message_id IN (SELECT id FROM messages WHERE room = ?)`,
			`DELETE FROM messages WHERE room = ?`,
			`DELETE FROM conversation_participants WHERE conversation_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("cascade delete: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO deleted_conversations (id, deleted_at) VALUES (?, ?)`,
			id, s.now().UnixNano(),
		); err != nil {
			return fmt.Errorf("record deleted conversation: %w", err)
		}
		return nil
	})
}

// IsConversationDeleted reports whether id belonged to a conversation that was deleted.
func (s *SQLiteStore) IsConversationDeleted(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM deleted_conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query deleted conversation: %w", err)
	}
	return true, nil
}

func addParticipants(ctx context.Context, tx *sql.Tx, conversationID string, participants []string) error {
	for _, identity := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_participants (conversation_id, identity) VALUES (?, ?)`,
			conversationID, identity,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var (
		conv          store.Conversation
		directKey     sql.NullString
		lastMessageID sql.NullInt64
		createdAt     int64
		updatedAt     int64
	)
	err := row.Scan(
		&conv.ID,
		&conv.IsGroup,
		&conv.Name,
		&directKey,
		&lastMessageID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	if directKey.Valid {
		conv.DirectKey = &directKey.String
	}
	if lastMessageID.Valid {
		conv.LastMessageID = &lastMessageID.Int64
	}
	conv.CreatedAt = fromNanos(createdAt)
	conv.UpdatedAt = fromNanos(updatedAt)
	return &conv, nil
}

func loadParticipants(ctx context.Context, q querier, conv *store.Conversation) error {
	rows, err := q.QueryContext(ctx,
		`SELECT identity FROM conversation_participants WHERE conversation_id = ? ORDER BY identity`,
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	conv.Participants = []string{}
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		conv.Participants = append(conv.Participants, identity)
	}
	return rows.Err()
}
