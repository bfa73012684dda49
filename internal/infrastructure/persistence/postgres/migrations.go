// Package postgres implements the PostgreSQL persistence layer of the
// KursLab engagement engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE COMPLETIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create lesson completion tables
-- Version: 001

-- Idempotency set: one row per counted (user, course, lesson).
-- The primary key is the exactly-once guarantee of the whole engine.
CREATE TABLE IF NOT EXISTS enrollment_lessons (
    user_id UUID NOT NULL,
    course_id UUID NOT NULL,
    lesson_number INTEGER NOT NULL,
    lesson_title TEXT NOT NULL DEFAULT '',
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, course_id, lesson_number),
    CONSTRAINT valid_lesson_number CHECK (lesson_number >= 1)
);

CREATE INDEX IF NOT EXISTS idx_enrollment_lessons_user ON enrollment_lessons(user_id, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_enrollment_lessons_course ON enrollment_lessons(course_id);

-- Per-course weekly counters. Rows are insert/update only and never deleted;
-- the counter is monotonic within a week.
CREATE TABLE IF NOT EXISTS weekly_lesson_completions (
    user_id UUID NOT NULL,
    course_id UUID NOT NULL,
    week_start TIMESTAMP WITH TIME ZONE NOT NULL,
    lessons_completed INTEGER NOT NULL DEFAULT 1,
    last_lesson_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, course_id, week_start),
    CONSTRAINT valid_lessons_completed CHECK (lessons_completed >= 1)
);

CREATE INDEX IF NOT EXISTS idx_weekly_completions_user_week ON weekly_lesson_completions(user_id, week_start);
`

const migration001Down = `
DROP TABLE IF EXISTS weekly_lesson_completions;
DROP TABLE IF EXISTS enrollment_lessons;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE STREAKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create user streaks table
-- Version: 002

-- One row per user, created on the first completion, never deleted.
-- Commands lock this row with SELECT ... FOR UPDATE, so all writes of a
-- single user are serialized on it.
CREATE TABLE IF NOT EXISTS user_streaks (
    user_id UUID PRIMARY KEY,
    current_week_start TIMESTAMP WITH TIME ZONE,
    current_week_lessons INTEGER NOT NULL DEFAULT 0,
    current_week_complete BOOLEAN NOT NULL DEFAULT FALSE,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    total_points BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_week_lessons CHECK (current_week_lessons >= 0),
    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND current_streak <= longest_streak),
    CONSTRAINT valid_total_points CHECK (total_points >= 0)
);

CREATE INDEX IF NOT EXISTS idx_user_streaks_current ON user_streaks(current_streak DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS user_streaks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE BADGES AND LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create badges and points ledger
-- Version: 003

-- Earned badges: unique per (user, level), never revoked.
CREATE TABLE IF NOT EXISTS badges (
    user_id UUID NOT NULL,
    level VARCHAR(20) NOT NULL,
    streak_when_earned INTEGER NOT NULL,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL,
    meta JSONB NOT NULL DEFAULT '{}'::jsonb,

    PRIMARY KEY (user_id, level),
    CONSTRAINT valid_level CHECK (level IN ('bronze', 'silver', 'gold', 'platinum', 'diamond')),
    CONSTRAINT valid_streak_when_earned CHECK (streak_when_earned >= 0)
);

CREATE INDEX IF NOT EXISTS idx_badges_user_earned ON badges(user_id, earned_at);

-- Append-only points ledger. Rows are never updated or deleted;
-- user_streaks.total_points is a cache of SUM(points) over this table.
CREATE TABLE IF NOT EXISTS points_transactions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    points INTEGER NOT NULL,
    tx_type VARCHAR(20) NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_points CHECK (points > 0),
    CONSTRAINT valid_tx_type CHECK (tx_type IN ('per_lesson', 'goal_bonus', 'badge_bonus'))
);

CREATE INDEX IF NOT EXISTS idx_points_tx_user_date ON points_transactions(user_id, created_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS points_transactions;
DROP TABLE IF EXISTS badges;
`
