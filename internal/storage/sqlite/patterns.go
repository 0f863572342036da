package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/havenops/remedy/internal/types"
)

// UpsertRecoveryPattern inserts or replaces a pattern keyed by signature.
func (s *SQLiteStorage) UpsertRecoveryPattern(ctx context.Context, pattern *types.RecoveryPattern) error {
	if pattern == nil {
		return fmt.Errorf("pattern is required")
	}

	strategiesJSON, err := marshalOrNull(pattern.SuccessfulStrategies)
	if err != nil {
		return fmt.Errorf("failed to marshal strategies: %w", err)
	}
	ratesJSON, err := marshalOrNull(pattern.SuccessRates)
	if err != nil {
		return fmt.Errorf("failed to marshal success rates: %w", err)
	}
	attemptsJSON, err := marshalOrNull(pattern.StrategyAttempts)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy attempts: %w", err)
	}
	conditionsJSON, err := marshalOrNull(pattern.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recovery_patterns (pattern_id, signature, strategies_json, success_rates_json, strategy_attempts_json, avg_recovery_time, conditions_json, last_updated, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			strategies_json = excluded.strategies_json,
			success_rates_json = excluded.success_rates_json,
			strategy_attempts_json = excluded.strategy_attempts_json,
			avg_recovery_time = excluded.avg_recovery_time,
			conditions_json = excluded.conditions_json,
			last_updated = excluded.last_updated,
			usage_count = excluded.usage_count`,
		pattern.ID, pattern.Signature, strategiesJSON, ratesJSON, attemptsJSON,
		pattern.AvgRecoveryTime.Seconds(), conditionsJSON, pattern.LastUpdated, pattern.UsageCount)
	if err != nil {
		return fmt.Errorf("failed to upsert recovery pattern: %w", err)
	}
	return nil
}

// GetRecoveryPatterns returns all persisted patterns.
func (s *SQLiteStorage) GetRecoveryPatterns(ctx context.Context) ([]*types.RecoveryPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_id, signature, strategies_json, success_rates_json, strategy_attempts_json, avg_recovery_time, conditions_json, last_updated, usage_count
		FROM recovery_patterns ORDER BY last_updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery patterns: %w", err)
	}
	defer rows.Close()

	var out []*types.RecoveryPattern
	for rows.Next() {
		var p types.RecoveryPattern
		var strategiesJSON, ratesJSON, attemptsJSON, conditionsJSON sql.NullString
		var avgSeconds float64
		if err := rows.Scan(&p.ID, &p.Signature, &strategiesJSON, &ratesJSON, &attemptsJSON, &avgSeconds, &conditionsJSON, &p.LastUpdated, &p.UsageCount); err != nil {
			return nil, fmt.Errorf("failed to scan recovery pattern: %w", err)
		}
		p.AvgRecoveryTime = time.Duration(avgSeconds * float64(time.Second))
		if strategiesJSON.Valid && strategiesJSON.String != "" {
			if err := json.Unmarshal([]byte(strategiesJSON.String), &p.SuccessfulStrategies); err != nil {
				return nil, fmt.Errorf("failed to unmarshal strategies: %w", err)
			}
		}
		if ratesJSON.Valid && ratesJSON.String != "" {
			if err := json.Unmarshal([]byte(ratesJSON.String), &p.SuccessRates); err != nil {
				return nil, fmt.Errorf("failed to unmarshal success rates: %w", err)
			}
		}
		if attemptsJSON.Valid && attemptsJSON.String != "" {
			if err := json.Unmarshal([]byte(attemptsJSON.String), &p.StrategyAttempts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal strategy attempts: %w", err)
			}
		}
		if conditionsJSON.Valid && conditionsJSON.String != "" {
			if err := json.Unmarshal([]byte(conditionsJSON.String), &p.Conditions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
			}
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpsertCodeFix inserts or replaces a code fix row, preserving the
// monotonic success/failure counters by taking the max of stored and
// incoming counts.
func (s *SQLiteStorage) UpsertCodeFix(ctx context.Context, fix *types.CodeFix) error {
	if fix == nil {
		return fmt.Errorf("fix is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_fixes (fix_id, fix_type, description, target_code, fixed_code, confidence, success_count, failure_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fix_id) DO UPDATE SET
			description = excluded.description,
			confidence = excluded.confidence,
			success_count = MAX(code_fixes.success_count, excluded.success_count),
			failure_count = MAX(code_fixes.failure_count, excluded.failure_count)`,
		fix.ID, string(fix.Type), fix.Description, nullString(fix.OriginalCode),
		nullString(fix.FixedCode), fix.Confidence, fix.SuccessCount, fix.FailureCount)
	if err != nil {
		return fmt.Errorf("failed to upsert code fix: %w", err)
	}
	return nil
}

// GetCodeFix returns one code fix by ID.
func (s *SQLiteStorage) GetCodeFix(ctx context.Context, fixID string) (*types.CodeFix, error) {
	var f types.CodeFix
	var fixType string
	var target, fixed sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT fix_id, fix_type, description, target_code, fixed_code, confidence, success_count, failure_count
		FROM code_fixes WHERE fix_id = ?`, fixID).
		Scan(&f.ID, &fixType, &f.Description, &target, &fixed, &f.Confidence, &f.SuccessCount, &f.FailureCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("code fix %s not found", fixID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get code fix: %w", err)
	}
	f.Type = types.FixType(fixType)
	f.OriginalCode = target.String
	f.FixedCode = fixed.String
	return &f, nil
}
