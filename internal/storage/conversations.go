package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c                Conversation
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.Title, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(created)
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}

// CreateConversation starts a new conversation with a random id
func (s *SQLiteStore) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	now := time.UnixMilli(time.Now().UnixMilli())
	c := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		c.ID, c.Title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return c, nil
}

// AppendMessage adds a turn to a conversation and bumps its update time.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	now := time.UnixMilli(time.Now().UnixMilli())
	msg := &Message{ConversationID: conversationID, Role: role, Content: content, CreatedAt: now}
	err := s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx,
			"UPDATE conversations SET updated_at = ? WHERE id = ?", now.UnixMilli(), conversationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		res, err = q.ExecContext(ctx,
			"INSERT INTO conversation_messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)",
			conversationID, role, content, now.UnixMilli())
		if err != nil {
			return err
		}
		msg.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns the last limit messages of a conversation in
// chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM conversation_messages
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var (
			m       Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListConversations returns conversations, most recently updated first
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}

// SetActiveConversation records which conversation new turns belong to.
func (s *SQLiteStore) SetActiveConversation(ctx context.Context, conversationID string) error {
	return s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx,
			"UPDATE conversations SET updated_at = ? WHERE id = ?", time.Now().UnixMilli(), conversationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		return setSettingWithQuerier(ctx, q, SettingActiveConversation, conversationID)
	})
}

// ActiveConversation returns the active conversation, or nil if none is set
// or it was deleted.
func (s *SQLiteStore) ActiveConversation(ctx context.Context) (*Conversation, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	id, ok, err := getSettingWithQuerier(ctx, db, SettingActiveConversation)
	if err != nil || !ok {
		return nil, err
	}
	row := db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?", id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// DeleteConversation removes a conversation and its messages
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx,
			"DELETE FROM conversation_messages WHERE conversation_id = ?", conversationID); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
			return err
		}
		active, ok, err := getSettingWithQuerier(ctx, q, SettingActiveConversation)
		if err != nil {
			return err
		}
		if ok && active == conversationID {
			_, err = q.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", SettingActiveConversation)
		}
		return err
	})
}
