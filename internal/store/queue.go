package store

import (
	"database/sql"
	"fmt"
)

// InsertDirectMessage queues m. A message with the same identity key is
// left untouched; inserted reports whether a row was added.
func (db *DB) InsertDirectMessage(m *DirectMessage) (inserted bool, err error) {
	res, err := db.Exec(`
		INSERT INTO queued_direct_messages (to_user_id, from_user_id, body, created_at, device_offline)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(to_user_id, body, created_at) DO NOTHING`,
		m.ToUserID, m.FromUserID, m.Body, m.CreatedAt, m.DeviceOffline)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DirectMessages lists queued messages to userID in insertion order.
func (db *DB) DirectMessages(userID int64) ([]DirectMessage, error) {
	return db.queryDirect(`
		SELECT seq, to_user_id, from_user_id, body, created_at, device_offline
		FROM queued_direct_messages WHERE to_user_id = ? ORDER BY seq ASC`, userID)
}

// AllDirectMessages lists every queued direct message, optionally only
// those flagged device-offline.
func (db *DB) AllDirectMessages(onlyDeviceOffline bool) ([]DirectMessage, error) {
	q := `SELECT seq, to_user_id, from_user_id, body, created_at, device_offline
		FROM queued_direct_messages`
	if onlyDeviceOffline {
		q += ` WHERE device_offline = 1`
	}
	return db.queryDirect(q + ` ORDER BY seq ASC`)
}

// CountDirectMessages returns how many messages are queued for userID.
func (db *DB) CountDirectMessages(userID int64) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM queued_direct_messages WHERE to_user_id = ?`, userID).Scan(&n)
	return n, err
}

// DeleteDirectMessage removes the queued message with the given key.
// Deleting a missing message is not an error.
func (db *DB) DeleteDirectMessage(k MessageKey) error {
	_, err := db.Exec(`DELETE FROM queued_direct_messages WHERE to_user_id = ? AND body = ? AND created_at = ?`,
		k.RecipientID, k.Body, k.CreatedAt)
	return err
}

// SetDirectDeviceOffline updates the device-offline flag of every key in a
// single transaction.
func (db *DB) SetDirectDeviceOffline(keys []MessageKey, value bool) error {
	return db.updateEach(`UPDATE queued_direct_messages SET device_offline = ?
		WHERE to_user_id = ? AND body = ? AND created_at = ?`, keys, value)
}

// InsertConversationMessage queues m. See InsertDirectMessage.
func (db *DB) InsertConversationMessage(m *ConversationMessage) (inserted bool, err error) {
	snapshot := m.Conversation
	if snapshot == "" {
		snapshot = "{}"
	}
	res, err := db.Exec(`
		INSERT INTO queued_conversation_messages (conversation_id, from_user_id, body, created_at, device_offline, conversation)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, body, created_at) DO NOTHING`,
		m.ConversationID, m.FromUserID, m.Body, m.CreatedAt, m.DeviceOffline, snapshot)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ConversationMessages lists queued messages to conversationID in insertion order.
func (db *DB) ConversationMessages(conversationID int64) ([]ConversationMessage, error) {
	return db.queryConversation(`
		SELECT seq, conversation_id, from_user_id, body, created_at, device_offline, conversation
		FROM queued_conversation_messages WHERE conversation_id = ? ORDER BY seq ASC`, conversationID)
}

// AllConversationMessages lists every queued conversation message,
// optionally only those flagged device-offline.
func (db *DB) AllConversationMessages(onlyDeviceOffline bool) ([]ConversationMessage, error) {
	q := `SELECT seq, conversation_id, from_user_id, body, created_at, device_offline, conversation
		FROM queued_conversation_messages`
	if onlyDeviceOffline {
		q += ` WHERE device_offline = 1`
	}
	return db.queryConversation(q + ` ORDER BY seq ASC`)
}

// CountConversationMessages returns how many messages are queued for conversationID.
func (db *DB) CountConversationMessages(conversationID int64) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM queued_conversation_messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	return n, err
}

// DeleteConversationMessage removes the queued message with the given key.
func (db *DB) DeleteConversationMessage(k MessageKey) error {
	_, err := db.Exec(`DELETE FROM queued_conversation_messages WHERE conversation_id = ? AND body = ? AND created_at = ?`,
		k.RecipientID, k.Body, k.CreatedAt)
	return err
}

// SetConversationDeviceOffline updates the device-offline flag of every key
// in a single transaction.
func (db *DB) SetConversationDeviceOffline(keys []MessageKey, value bool) error {
	return db.updateEach(`UPDATE queued_conversation_messages SET device_offline = ?
		WHERE conversation_id = ? AND body = ? AND created_at = ?`, keys, value)
}

func (db *DB) queryDirect(q string, args ...any) ([]DirectMessage, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []DirectMessage
	for rows.Next() {
		var m DirectMessage
		if err := rows.Scan(&m.Seq, &m.ToUserID, &m.FromUserID, &m.Body, &m.CreatedAt, &m.DeviceOffline); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) queryConversation(q string, args ...any) ([]ConversationMessage, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.Seq, &m.ConversationID, &m.FromUserID, &m.Body, &m.CreatedAt, &m.DeviceOffline, &m.Conversation); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) updateEach(stmt string, keys []MessageKey, value bool) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prepared, err := tx.Prepare(stmt)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = prepared.Close() }()

	for _, k := range keys {
		if _, err := prepared.Exec(value, k.RecipientID, k.Body, k.CreatedAt); err != nil {
			return fmt.Errorf("update %d: %w", k.RecipientID, err)
		}
	}
	return tx.Commit()
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
