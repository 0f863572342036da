package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/havenops/remedy/internal/types"
)

// CreateHealingSession persists a newly opened session.
func (s *SQLiteStorage) CreateHealingSession(ctx context.Context, session *types.HealingSession) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	initialJSON, err := marshalOrNull(session.InitialState)
	if err != nil {
		return fmt.Errorf("failed to marshal initial state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO healing_sessions (session_id, start_time, trigger_type, initial_state_json, success, errors_count, recoveries_count)
		VALUES (?, ?, ?, ?, 0, 0, 0)`,
		session.ID, session.StartTime, string(session.Trigger), initialJSON)
	if err != nil {
		return fmt.Errorf("failed to create healing session: %w", err)
	}
	return nil
}

// CloseHealingSession records the terminal state of a session.
func (s *SQLiteStorage) CloseHealingSession(ctx context.Context, session *types.HealingSession) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	finalJSON, err := marshalOrNull(session.FinalState)
	if err != nil {
		return fmt.Errorf("failed to marshal final state: %w", err)
	}
	lessonsJSON, err := marshalOrNull(session.Lessons)
	if err != nil {
		return fmt.Errorf("failed to marshal lessons: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE healing_sessions
		SET end_time = ?, final_state_json = ?, success = ?, errors_count = ?, recoveries_count = ?, lessons_json = ?
		WHERE session_id = ?`,
		session.EndTime, finalJSON, boolToInt(session.Success),
		len(session.Errors), len(session.Recoveries), lessonsJSON, session.ID)
	if err != nil {
		return fmt.Errorf("failed to close healing session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check close result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("healing session %s not found", session.ID)
	}
	return nil
}

// GetRecentHealingSessions returns up to limit sessions, newest first.
// Error/anomaly/recovery details are not rehydrated; counts and states
// are enough for trend reporting.
func (s *SQLiteStorage) GetRecentHealingSessions(ctx context.Context, limit int) ([]*types.HealingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, start_time, end_time, trigger_type, success, lessons_json
		FROM healing_sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query healing sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.HealingSession
	for rows.Next() {
		var sess types.HealingSession
		var trigger string
		var endTime sql.NullTime
		var success int
		var lessonsJSON sql.NullString
		if err := rows.Scan(&sess.ID, &sess.StartTime, &endTime, &trigger, &success, &lessonsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan healing session: %w", err)
		}
		sess.Trigger = types.TriggerType(trigger)
		sess.Success = success != 0
		if endTime.Valid {
			sess.EndTime = endTime.Time
		}
		if lessonsJSON.Valid && lessonsJSON.String != "" {
			if err := json.Unmarshal([]byte(lessonsJSON.String), &sess.Lessons); err != nil {
				return nil, fmt.Errorf("failed to unmarshal lessons: %w", err)
			}
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// StoreExperience persists one learning experience.
func (s *SQLiteStorage) StoreExperience(ctx context.Context, exp *types.Experience) error {
	if exp == nil {
		return fmt.Errorf("experience is required")
	}
	contextJSON, err := marshalOrNull(exp.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal experience context: %w", err)
	}
	actionsJSON, err := marshalOrNull(exp.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	metricsJSON, err := marshalOrNull(map[string]float64{
		"accuracy":       exp.Accuracy,
		"efficiency":     exp.Efficiency,
		"resource_usage": exp.ResourceUsage,
		"complexity":     exp.Complexity,
		"confidence":     exp.Confidence,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO experiences (experience_id, timestamp, context_json, actions_json, outcome, success, execution_time_ms, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Timestamp, contextJSON, actionsJSON, exp.Outcome,
		boolToInt(exp.Success), exp.ExecutionTime.Milliseconds(), metricsJSON)
	if err != nil {
		return fmt.Errorf("failed to store experience: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
