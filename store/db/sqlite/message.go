package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	citations, err := json.Marshal(create.Citations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal citations")
	}

	stmt := `INSERT INTO message (uid, conversation_id, role, content, citations, direct_mode, confidence, incomplete, latency_ms, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := d.db.ExecContext(ctx, stmt,
		create.UID, create.ConversationID, create.Role, create.Content, string(citations),
		create.DirectMode, create.Confidence, create.Incomplete, create.LatencyMs, create.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get message id")
	}
	create.ID = id

	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}

	query := `
		SELECT id, uid, conversation_id, role, content, citations, direct_mode, confidence, feedback, incomplete, latency_ms, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var citations string
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.Role, &m.Content, &citations, &m.DirectMode, &m.Confidence, &m.Feedback, &m.Incomplete, &m.LatencyMs, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if citations != "" {
			if err := json.Unmarshal([]byte(citations), &m.Citations); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal citations")
			}
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateMessageFeedback(ctx context.Context, update *store.UpdateMessageFeedback) error {
	stmt := `UPDATE message SET feedback = ? WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, update.Feedback, update.ID); err != nil {
		return errors.Wrap(err, "failed to update message feedback")
	}
	return nil
}
