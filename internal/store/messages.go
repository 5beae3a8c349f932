// ABOUTME: Message ledger persistence keyed by (conversation_id, seq)
// ABOUTME: Append, ordered reads, read-marking and delivery state updates

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendMessage appends a message to a conversation's ledger, allocating the
// next sequence number inside the transaction. When reactivate is true a
// paused conversation is moved back to active in the same transaction (bot
// messages must pass reactivate=false). The lead's last interaction is
// bumped to the message timestamp. Returns the allocated sequence number.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message, reactivate bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var leadID string
	err = tx.QueryRowContext(ctx, `SELECT lead_id FROM conversations WHERE id = ?`, msg.ConversationID).Scan(&leadID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying conversation: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`,
		msg.ConversationID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("allocating sequence number: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, type, content, sender, sender_name,
			read, provider_message_id, delivery, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ConversationID,
		seq,
		string(msg.Type),
		msg.Content,
		string(msg.Sender),
		msg.SenderName,
		boolInt(msg.Read),
		msg.ProviderMessageID,
		string(msg.Delivery),
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	now := msg.Timestamp.UTC().Format(time.RFC3339)
	if reactivate {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ?, status = CASE WHEN status = 'paused' THEN 'active' ELSE status END WHERE id = ?`,
			now, msg.ConversationID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`,
			now, msg.ConversationID,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("updating conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET last_interaction_at = ? WHERE id = ?`,
		now, leadID,
	); err != nil {
		return 0, fmt.Errorf("updating lead last interaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing message append: %w", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"seq", seq,
		"sender", msg.Sender,
	)
	return seq, nil
}

const messageColumns = `id, conversation_id, seq, type, content, sender, sender_name,
	read, provider_message_id, delivery, timestamp`

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*Message, error) {
	var msg Message
	var msgType, sender, delivery, timestampStr string
	var read int
	var providerID sql.NullString

	if err := scanner.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Seq,
		&msgType,
		&msg.Content,
		&sender,
		&msg.SenderName,
		&read,
		&providerID,
		&delivery,
		&timestampStr,
	); err != nil {
		return nil, err
	}

	msg.Type = MessageType(msgType)
	msg.Sender = Role(sender)
	msg.Read = read != 0
	msg.Delivery = DeliveryState(delivery)
	if providerID.Valid {
		msg.ProviderMessageID = &providerID.String
	}

	var err error
	msg.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message timestamp: %w", err)
	}
	return &msg, nil
}

// ListMessages returns a conversation's full ledger in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// MarkMessagesRead sets the read flag on all unread messages from the given
// sender role. Idempotent: with nothing unread it affects zero rows and
// succeeds. Returns the number of messages marked.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, conversationID string, sender Role) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET read = 1 WHERE conversation_id = ? AND sender = ? AND read = 0`,
		conversationID, string(sender),
	)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if affected > 0 {
		s.logger.Debug("marked messages read", "conversation_id", conversationID, "sender", sender, "count", affected)
	}
	return affected, nil
}

// CountUnread returns the number of unread messages from the given sender role.
func (s *SQLiteStore) CountUnread(ctx context.Context, conversationID string, sender Role) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND sender = ? AND read = 0`,
		conversationID, string(sender),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// SetMessageDelivery updates the delivery state of an agent reply after the
// outbound send attempt. The provider message ID is recorded on success.
func (s *SQLiteStore) SetMessageDelivery(ctx context.Context, messageID string, state DeliveryState, providerMessageID *string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET delivery = ?, provider_message_id = ? WHERE id = ?`,
		string(state), providerMessageID, messageID,
	)
	if err != nil {
		return fmt.Errorf("updating message delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated message delivery", "id", messageID, "delivery", state)
	return nil
}
