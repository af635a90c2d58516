package interaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DurableStore persists rated interactions in MySQL. Writes use
// per-call transactions; no long transactions are held.
type DurableStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDurableStore wraps an open database handle and creates the schema
// if it does not exist.
func NewDurableStore(db *sql.DB, logger *slog.Logger) (*DurableStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &DurableStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *DurableStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			interaction_id VARCHAR(64) NOT NULL,
			session_id VARCHAR(128) NOT NULL,
			user_message TEXT NOT NULL,
			final_response TEXT NOT NULL,
			routing_type VARCHAR(32) NOT NULL,
			tools_used JSON,
			tool_results JSON,
			llm_payload JSON,
			llm_response TEXT,
			debug_info JSON,
			feedback VARCHAR(16),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_interaction (interaction_id)
		) CHARACTER SET utf8mb4`,

		`CREATE TABLE IF NOT EXISTS negative_feedback (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			interaction_id VARCHAR(64) NOT NULL,
			session_id VARCHAR(128) NOT NULL,
			user_message TEXT NOT NULL,
			final_response TEXT NOT NULL,
			routing_type VARCHAR(32) NOT NULL,
			tools_used JSON,
			reason VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			KEY idx_negative_session (session_id)
		) CHARACTER SET utf8mb4`,

		// Aggregated offline from the two tables above.
		`CREATE TABLE IF NOT EXISTS feedback_stats (
			stat_date DATE NOT NULL,
			total_interactions INT NOT NULL DEFAULT 0,
			thumbs_up INT NOT NULL DEFAULT 0,
			thumbs_down INT NOT NULL DEFAULT 0,
			direct_shortcut INT NOT NULL DEFAULT 0,
			llm_with_tools INT NOT NULL DEFAULT 0,
			llm_only INT NOT NULL DEFAULT 0,
			UNIQUE KEY uniq_stat_date (stat_date)
		) CHARACTER SET utf8mb4`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveInteraction records a thumbs-up interaction. The insert is
// idempotent: the unique key on interaction_id turns a repeat call
// into a feedback/timestamp update.
func (s *DurableStore) SaveInteraction(ctx context.Context, in *Interaction) error {
	toolsUsed := marshalOrNull(in.ToolsUsed)
	toolResults := marshalOrNull(in.ToolResults)
	llmPayload := marshalOrNull(in.LLMPayload)
	debugInfo := marshalOrNull(in.DebugInfo)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO interactions
			(interaction_id, session_id, user_message, final_response, routing_type,
			 tools_used, tool_results, llm_payload, llm_response, debug_info, feedback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			feedback = VALUES(feedback),
			updated_at = CURRENT_TIMESTAMP`,
		in.InteractionID,
		in.SessionID,
		in.UserMessage,
		in.FinalResponse,
		in.RoutingType,
		toolsUsed,
		toolResults,
		llmPayload,
		nullableString(in.LLMResponse),
		debugInfo,
		in.Feedback,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("interaction saved to durable store", "interaction_id", in.InteractionID)
	return nil
}

// SaveNegativeFeedback records a thumbs-down row for later analysis.
func (s *DurableStore) SaveNegativeFeedback(ctx context.Context, in *Interaction, reason string) error {
	toolsUsed := marshalOrNull(in.ToolsUsed)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO negative_feedback
			(interaction_id, session_id, user_message, final_response, routing_type, tools_used, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.InteractionID,
		in.SessionID,
		in.UserMessage,
		in.FinalResponse,
		in.RoutingType,
		toolsUsed,
		reason,
	)
	if err != nil {
		return fmt.Errorf("insert negative feedback: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("negative feedback saved", "interaction_id", in.InteractionID)
	return nil
}

// HasInteraction reports whether a durable row exists for the ID.
func (s *DurableStore) HasInteraction(ctx context.Context, interactionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE interaction_id = ?`, interactionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count interactions: %w", err)
	}
	return n > 0, nil
}

// SetConnLimits applies the configured pool size to the handle.
func SetConnLimits(db *sql.DB, poolSize int) {
	if poolSize <= 0 {
		poolSize = 5
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(5 * time.Minute)
}

func marshalOrNull(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
