package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/havenops/remedy/internal/types"
)

// StoreErrorEvent persists one classified error event.
func (s *SQLiteStorage) StoreErrorEvent(ctx context.Context, event *types.ErrorEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}

	contextJSON, err := marshalOrNull(event.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal event context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO error_events (event_id, timestamp, error_type, severity, message, stack_trace, context_json, process_id, agent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, string(event.Type), string(event.Severity),
		event.Message, nullString(event.StackTrace), contextJSON,
		nullString(event.ProcessID), nullString(event.AgentID))
	if err != nil {
		return fmt.Errorf("failed to store error event: %w", err)
	}
	return nil
}

// GetRecentErrorEvents returns up to limit events, newest first.
func (s *SQLiteStorage) GetRecentErrorEvents(ctx context.Context, limit int) ([]*types.ErrorEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, timestamp, error_type, severity, message, stack_trace, context_json, process_id, agent_id
		FROM error_events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error events: %w", err)
	}
	defer rows.Close()
	return scanErrorEvents(rows)
}

// GetErrorEventsSince returns events recorded at or after the given time,
// oldest first.
func (s *SQLiteStorage) GetErrorEventsSince(ctx context.Context, since time.Time) ([]*types.ErrorEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, timestamp, error_type, severity, message, stack_trace, context_json, process_id, agent_id
		FROM error_events WHERE timestamp >= ? ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query error events: %w", err)
	}
	defer rows.Close()
	return scanErrorEvents(rows)
}

// CleanupErrorEvents deletes events older than the cutoff, in batches,
// and returns the number deleted.
func (s *SQLiteStorage) CleanupErrorEvents(ctx context.Context, olderThan time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	total := 0
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM error_events WHERE event_id IN (
				SELECT event_id FROM error_events WHERE timestamp < ? LIMIT ?
			)`, olderThan, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to cleanup error events: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to count deleted events: %w", err)
		}
		total += int(n)
		if int(n) < batchSize {
			return total, nil
		}
	}
}

func scanErrorEvents(rows *sql.Rows) ([]*types.ErrorEvent, error) {
	var out []*types.ErrorEvent
	for rows.Next() {
		var e types.ErrorEvent
		var errType, severity string
		var stack, contextJSON, processID, agentID sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &errType, &severity, &e.Message, &stack, &contextJSON, &processID, &agentID); err != nil {
			return nil, fmt.Errorf("failed to scan error event: %w", err)
		}
		e.Type = types.ErrorType(errType)
		e.Severity = types.Severity(severity)
		e.StackTrace = stack.String
		e.ProcessID = processID.String
		e.AgentID = agentID.String
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &e.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event context: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// StoreAnomaly persists one detected anomaly.
func (s *SQLiteStorage) StoreAnomaly(ctx context.Context, anomaly *types.Anomaly) error {
	if anomaly == nil {
		return fmt.Errorf("anomaly is required")
	}
	metricsJSON, err := marshalOrNull(anomaly.AffectedMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal affected metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anomalies (anomaly_id, timestamp, anomaly_type, severity, description, affected_metrics_json, confidence_score, deviation_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		anomaly.ID, anomaly.Timestamp, string(anomaly.Type), string(anomaly.Severity),
		anomaly.Description, metricsJSON, anomaly.Confidence, anomaly.Deviation)
	if err != nil {
		return fmt.Errorf("failed to store anomaly: %w", err)
	}
	return nil
}

// GetRecentAnomalies returns up to limit anomalies, newest first.
func (s *SQLiteStorage) GetRecentAnomalies(ctx context.Context, limit int) ([]*types.Anomaly, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT anomaly_id, timestamp, anomaly_type, severity, description, affected_metrics_json, confidence_score, deviation_score
		FROM anomalies ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var out []*types.Anomaly
	for rows.Next() {
		var a types.Anomaly
		var atype, severity string
		var metricsJSON sql.NullString
		if err := rows.Scan(&a.ID, &a.Timestamp, &atype, &severity, &a.Description, &metricsJSON, &a.Confidence, &a.Deviation); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Type = types.AnomalyType(atype)
		a.Severity = types.Severity(severity)
		if metricsJSON.Valid && metricsJSON.String != "" {
			if err := json.Unmarshal([]byte(metricsJSON.String), &a.AffectedMetrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal affected metrics: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func marshalOrNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
