package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("message not found")
	ErrNotOwner = errors.New("message not owned by sender")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const pairwiseChatQuery = `
	SELECT c.id, c.name, c.created_at
	FROM conversations c
	JOIN participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
	JOIN participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
	WHERE c.type = 'private'
	LIMIT 1
`

// GetOrCreateChat returns the private chat linking the two users, creating
// it if none exists yet. Creation takes a transaction-scoped advisory lock
// on the user pair so two concurrent first messages end up in one chat.
func (r *Repository) GetOrCreateChat(ctx context.Context, userA, userB int64) (*Chat, error) {
	c := &Chat{}
	err := r.db.QueryRowContext(ctx, pairwiseChatQuery, userA, userB).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var nameA, nameB string
	if err := r.db.QueryRowContext(ctx, "SELECT username FROM users WHERE id = $1", userA).Scan(&nameA); err != nil {
		return nil, fmt.Errorf("lookup user %d: %w", userA, err)
	}
	if err := r.db.QueryRowContext(ctx, "SELECT username FROM users WHERE id = $1", userB).Scan(&nameB); err != nil {
		return nil, fmt.Errorf("lookup user %d: %w", userB, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock key is derived from the ordered pair, so (a,b) and (b,a)
	// contend on the same lock.
	if _, err := tx.ExecContext(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended(least($1, $2)::text || ':' || greatest($1, $2)::text, 0))",
		userA, userB); err != nil {
		return nil, err
	}

	// A concurrent caller may have created the chat while we waited for
	// the lock.
	err = tx.QueryRowContext(ctx, pairwiseChatQuery, userA, userB).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == nil {
		return c, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	c.Name = nameA + " & " + nameB
	err = tx.QueryRowContext(ctx,
		"INSERT INTO conversations (name, type) VALUES ($1, 'private') RETURNING id, created_at",
		c.Name).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, uid := range []int64{userA, userB} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)", c.ID, uid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

// ListChats returns every chat the user participates in, newest first.
func (r *Repository) ListChats(ctx context.Context, userID int64) ([]Chat, error) {
	query := `
		SELECT c.id, c.name, c.created_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (r *Repository) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2",
		chatID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) AppendMessage(ctx context.Context, chatID, senderID int64, text, image string, replyTo *int64) (*Message, error) {
	m := &Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		Image:     image,
		ReplyToID: replyTo,
	}
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, image, reply_to_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, chatID, senderID, text, image, replyTo).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT username FROM users WHERE id = $1", senderID).Scan(&m.SenderUsername); err != nil {
		return nil, err
	}
	return m, nil
}

// EditMessage updates the text of a message if senderID owns it and the
// message lives in chatID. Only body and the edited flag change; a
// rejected edit commits nothing.
func (r *Repository) EditMessage(ctx context.Context, chatID, messageID, senderID int64, text string) (*Message, error) {
	m := &Message{ID: messageID, ChatID: chatID, SenderID: senderID, Text: text, Edited: true}
	query := `
		UPDATE messages m SET content = $4, edited = TRUE
		FROM users u
		WHERE m.id = $1 AND m.conversation_id = $2 AND m.sender_id = $3 AND u.id = m.sender_id
		RETURNING COALESCE(m.image, ''), m.reply_to_id, m.created_at, u.username
	`
	err := r.db.QueryRowContext(ctx, query, messageID, chatID, senderID, text).
		Scan(&m.Image, &m.ReplyToID, &m.CreatedAt, &m.SenderUsername)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var ownerID int64
	err = r.db.QueryRowContext(ctx,
		"SELECT sender_id FROM messages WHERE id = $1 AND conversation_id = $2",
		messageID, chatID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown id, or a message from another chat; indistinguishable
		// on purpose.
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrNotOwner
}

func (r *Repository) ResolveMessage(ctx context.Context, messageID int64) (*Message, error) {
	m := &Message{ID: messageID}
	query := `
		SELECT m.conversation_id, m.sender_id, m.content, COALESCE(m.image, ''),
		       m.reply_to_id, m.edited, m.created_at, u.username
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`
	err := r.db.QueryRowContext(ctx, query, messageID).Scan(
		&m.ChatID, &m.SenderID, &m.Text, &m.Image,
		&m.ReplyToID, &m.Edited, &m.CreatedAt, &m.SenderUsername)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the newest limit messages of a chat in
// chronological order.
func (r *Repository) ListMessages(ctx context.Context, chatID int64, limit int) ([]*Message, error) {
	query := `
		SELECT m.id, m.sender_id, m.content, COALESCE(m.image, ''),
		       m.reply_to_id, m.edited, m.created_at, u.username
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{ChatID: chatID}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Text, &m.Image,
			&m.ReplyToID, &m.Edited, &m.CreatedAt, &m.SenderUsername); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query, oldest-first for the caller.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *Repository) ChatMembers(ctx context.Context, chatID int64) ([]Member, error) {
	query := `
		SELECT u.id, u.username, COALESCE(u.push_token, '')
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Username, &m.PushToken); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
