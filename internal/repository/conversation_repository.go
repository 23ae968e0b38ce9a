package repository

import (
	"context"
	"fmt"
	"time"

	"hokhau-ai/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	fetchPageSize     = 500
	recentFetchLimit  = 500
	maxMessageRunes   = 2000
	maxResponseRunes  = 2000
	maxContextRunes   = 1000
)

// ConversationRepository reads and writes the conversations table, the
// structured record of every chat exchange. It is the primary source for
// knowledge store reloads and auto-learning.
type ConversationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewConversationRepository(db *pgxpool.Pool, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ConversationRepository) Name() string {
	return "postgres"
}

// Insert persists one chat exchange. Long fields are truncated so a single
// oversized request cannot bloat the table.
func (r *ConversationRepository) Insert(ctx context.Context, event *models.ChatEvent) error {
	query := squirrel.Insert("conversations").
		Columns("id", "message", "response", "context", "source", "created_at").
		Values(
			event.ID,
			truncateRunes(event.Message, maxMessageRunes),
			truncateRunes(event.Response, maxResponseRunes),
			truncateRunes(event.Context, maxContextRunes),
			event.Source,
			event.Timestamp,
		).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// FetchAll streams the whole table oldest-first using keyset pagination on
// (created_at, id), so reloads over large histories never hold a big offset
// scan open.
func (r *ConversationRepository) FetchAll(ctx context.Context) ([]models.ConversationRecord, error) {
	var out []models.ConversationRecord

	var lastCreatedAt time.Time
	var lastID string
	first := true

	for {
		query := squirrel.Select("id", "message", "response", "source", "created_at").
			From("conversations").
			OrderBy("created_at ASC", "id ASC").
			Limit(fetchPageSize).
			PlaceholderFormat(squirrel.Dollar)

		if !first {
			query = query.Where(squirrel.Expr("(created_at, id) > (?, ?)", lastCreatedAt, lastID))
		}

		sql, args, err := query.ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build fetch query: %w", err)
		}

		rows, err := r.db.Query(ctx, sql, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch conversations: %w", err)
		}

		count := 0
		for rows.Next() {
			var id, message, response, source string
			var createdAt time.Time
			if err := rows.Scan(&id, &message, &response, &source, &createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan conversation row: %w", err)
			}
			out = append(out, models.ConversationRecord{
				Question:  message,
				Answer:    response,
				Source:    source,
				Timestamp: createdAt,
			})
			lastCreatedAt = createdAt
			lastID = id
			count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate conversations: %w", err)
		}

		if count < fetchPageSize {
			break
		}
		first = false
	}

	return out, nil
}

// FetchRecent returns the newest records up to a fixed limit, for the
// auto-learner.
func (r *ConversationRepository) FetchRecent(ctx context.Context) ([]models.ConversationRecord, error) {
	query := squirrel.Select("message", "response", "source", "created_at").
		From("conversations").
		OrderBy("created_at DESC").
		Limit(recentFetchLimit).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent conversations: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationRecord
	for rows.Next() {
		var message, response, source string
		var createdAt time.Time
		if err := rows.Scan(&message, &response, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		out = append(out, models.ConversationRecord{
			Question:  message,
			Answer:    response,
			Source:    source,
			Timestamp: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return out, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
