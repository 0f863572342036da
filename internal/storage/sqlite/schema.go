package sqlite

const schema = `
-- Error events table
CREATE TABLE IF NOT EXISTS error_events (
    event_id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    error_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    stack_trace TEXT,
    context_json TEXT,
    process_id TEXT,
    agent_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_error_events_timestamp ON error_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_error_events_type ON error_events(error_type);

-- Anomalies table
CREATE TABLE IF NOT EXISTS anomalies (
    anomaly_id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    anomaly_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    affected_metrics_json TEXT,
    confidence_score REAL NOT NULL DEFAULT 0,
    deviation_score REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_anomalies_timestamp ON anomalies(timestamp);

-- Recovery patterns table
CREATE TABLE IF NOT EXISTS recovery_patterns (
    pattern_id TEXT PRIMARY KEY,
    signature TEXT NOT NULL UNIQUE,
    strategies_json TEXT,
    success_rates_json TEXT,
    strategy_attempts_json TEXT,
    avg_recovery_time REAL NOT NULL DEFAULT 0,
    conditions_json TEXT,
    last_updated DATETIME NOT NULL,
    usage_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_recovery_patterns_signature ON recovery_patterns(signature);

-- Healing sessions table
CREATE TABLE IF NOT EXISTS healing_sessions (
    session_id TEXT PRIMARY KEY,
    start_time DATETIME NOT NULL,
    end_time DATETIME,
    trigger_type TEXT NOT NULL,
    initial_state_json TEXT,
    final_state_json TEXT,
    success INTEGER NOT NULL DEFAULT 0,
    errors_count INTEGER NOT NULL DEFAULT 0,
    recoveries_count INTEGER NOT NULL DEFAULT 0,
    lessons_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_healing_sessions_start ON healing_sessions(start_time);

-- Code fixes table
CREATE TABLE IF NOT EXISTS code_fixes (
    fix_id TEXT PRIMARY KEY,
    fix_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    target_code TEXT,
    fixed_code TEXT,
    confidence REAL NOT NULL DEFAULT 0,
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0
);

-- Experiences table (learning layer)
CREATE TABLE IF NOT EXISTS experiences (
    experience_id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    context_json TEXT,
    actions_json TEXT,
    outcome TEXT,
    success INTEGER NOT NULL DEFAULT 0,
    execution_time_ms INTEGER NOT NULL DEFAULT 0,
    metrics_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_experiences_timestamp ON experiences(timestamp);
`
