// Copyright 2025 The OpsCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides the reference ConversationStore adapter
// (SPEC_FULL.md A5): a database/sql implementation of
// conversation.Store portable across SQLite, PostgreSQL, and MySQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/opscore/orchestrator/pkg/model"
)

// Dialect is a supported database/sql driver family. Each dialect
// differs only in its placeholder syntax and auto-increment column
// type; the schema and queries are otherwise identical.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return string(d)
}

// SQLStore is the reference conversation.Store adapter.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens (and migrates) a SQLStore for dialect at dsn. dsn is a
// driver-specific data source name; for DialectSQLite it is a file
// path or ":memory:".
func Open(dialect Dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres, DialectMySQL:
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q (want sqlite, postgres, or mysql)", dialect)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	conversationsSQL := `
CREATE TABLE IF NOT EXISTS conversations (
    id %s,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    topic_title TEXT NOT NULL DEFAULT '',
    topic_details TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`
	messagesSQL := `
CREATE TABLE IF NOT EXISTS messages (
    id %s,
    conv_id BIGINT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`

	switch s.dialect {
	case DialectPostgres:
		conversationsSQL = fmt.Sprintf(conversationsSQL, "BIGSERIAL PRIMARY KEY")
		messagesSQL = fmt.Sprintf(messagesSQL, "BIGSERIAL PRIMARY KEY")
	case DialectMySQL:
		conversationsSQL = fmt.Sprintf(conversationsSQL, "BIGINT PRIMARY KEY AUTO_INCREMENT")
		messagesSQL = fmt.Sprintf(messagesSQL, "BIGINT PRIMARY KEY AUTO_INCREMENT")
	default:
		conversationsSQL = fmt.Sprintf(conversationsSQL, "INTEGER PRIMARY KEY AUTOINCREMENT")
		messagesSQL = fmt.Sprintf(messagesSQL, "INTEGER PRIMARY KEY AUTOINCREMENT")
	}

	if _, err := s.db.ExecContext(ctx, conversationsSQL); err != nil {
		return fmt.Errorf("store: create conversations table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, messagesSQL); err != nil {
		return fmt.Errorf("store: create messages table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_conv_id ON messages(conv_id, id)`); err != nil {
		return fmt.Errorf("store: create messages index: %w", err)
	}
	return nil
}

// bind rewrites a query's positional "?" placeholders into the
// dialect's own syntax ("$1" for postgres; "?" is left untouched for
// sqlite and mysql).
func (s *SQLStore) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	n := 0
	out := make([]byte, 0, len(query)+8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, []byte(fmt.Sprintf("$%d", n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// CreateConversation creates a new conversation row.
func (s *SQLStore) CreateConversation(ctx context.Context, userID, title string) (model.Conversation, error) {
	now := time.Now().UTC()
	query := s.bind(`INSERT INTO conversations (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`)

	if s.dialect == DialectPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, query+" RETURNING id", userID, title, now, now).Scan(&id)
		if err != nil {
			return model.Conversation{}, fmt.Errorf("store: create conversation: %w", err)
		}
		return model.Conversation{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
	}

	res, err := s.db.ExecContext(ctx, query, userID, title, now, now)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("store: create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Conversation{}, fmt.Errorf("store: create conversation: %w", err)
	}
	return model.Conversation{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetConversation loads a single conversation by id.
func (s *SQLStore) GetConversation(ctx context.Context, convID int64) (model.Conversation, error) {
	query := s.bind(`SELECT id, user_id, title, topic_title, topic_details, created_at, updated_at FROM conversations WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, query, convID)

	var c model.Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.TopicTitle, &c.TopicDetails, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return model.Conversation{}, fmt.Errorf("store: conversation %d not found", convID)
		}
		return model.Conversation{}, fmt.Errorf("store: get conversation %d: %w", convID, err)
	}
	return c, nil
}

// SetTopic updates a conversation's rolling topic summary (spec §4.10
// update_topic tool).
func (s *SQLStore) SetTopic(ctx context.Context, convID int64, title, details string) error {
	query := s.bind(`UPDATE conversations SET topic_title = ?, topic_details = ?, updated_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, query, title, details, time.Now().UTC(), convID)
	if err != nil {
		return fmt.Errorf("store: set topic for conversation %d: %w", convID, err)
	}
	return nil
}

// AddMessage appends an append-only message row and bumps the parent
// conversation's updated_at.
func (s *SQLStore) AddMessage(ctx context.Context, convID int64, role model.Role, content string) (model.Message, error) {
	now := time.Now().UTC()
	insertQuery := s.bind(`INSERT INTO messages (conv_id, role, content, created_at) VALUES (?, ?, ?, ?)`)

	var id int64
	if s.dialect == DialectPostgres {
		err := s.db.QueryRowContext(ctx, insertQuery+" RETURNING id", convID, string(role), content, now).Scan(&id)
		if err != nil {
			return model.Message{}, fmt.Errorf("store: add message to conversation %d: %w", convID, err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, insertQuery, convID, string(role), content, now)
		if err != nil {
			return model.Message{}, fmt.Errorf("store: add message to conversation %d: %w", convID, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return model.Message{}, fmt.Errorf("store: add message to conversation %d: %w", convID, err)
		}
	}

	touchQuery := s.bind(`UPDATE conversations SET updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, touchQuery, now, convID); err != nil {
		return model.Message{}, fmt.Errorf("store: touch conversation %d: %w", convID, err)
	}

	return model.Message{ID: id, ConvID: convID, Role: role, Content: content, CreatedAt: now}, nil
}

// ListMessages returns the most recent limit messages for convID in
// chronological order.
func (s *SQLStore) ListMessages(ctx context.Context, convID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := s.bind(`SELECT id, conv_id, role, content, created_at FROM messages WHERE conv_id = ? ORDER BY id DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, convID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages for conversation %d: %w", convID, err)
	}
	defer rows.Close()

	var reversed []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConvID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message row: %w", err)
		}
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages for conversation %d: %w", convID, err)
	}

	out := make([]model.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}
