package storage

const schema = `
-- Offline mirror of the authenticated learner's profile.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    grade INTEGER NOT NULL,
    medium TEXT NOT NULL,
    xp INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    streak INTEGER NOT NULL DEFAULT 0,
    last_sync DATETIME NOT NULL
);

-- Downloaded lesson bodies. The content column is immutable once written;
-- last_accessed is the only field updated afterwards.
CREATE TABLE IF NOT EXISTS lesson_content (
    id TEXT PRIMARY KEY,
    subject TEXT NOT NULL,
    grade INTEGER NOT NULL,
    chapter TEXT NOT NULL,
    topic TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    language TEXT NOT NULL,
    page_number INTEGER NOT NULL DEFAULT 0,
    textbook_name TEXT NOT NULL DEFAULT '',
    downloaded_at DATETIME NOT NULL,
    last_accessed DATETIME
);
CREATE INDEX IF NOT EXISTS idx_lesson_subject_grade ON lesson_content(subject, grade);

CREATE TABLE IF NOT EXISTS quiz_attempts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    quiz_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    topic TEXT NOT NULL,
    questions_json TEXT NOT NULL,
    score INTEGER NOT NULL,
    max_score INTEGER NOT NULL,
    time_taken INTEGER NOT NULL,
    difficulty TEXT NOT NULL,
    completed_at DATETIME NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_attempts_user ON quiz_attempts(user_id);
CREATE INDEX IF NOT EXISTS idx_attempts_synced ON quiz_attempts(synced);

-- Keyed by user|subject|topic so repeated local updates collapse into one row.
CREATE TABLE IF NOT EXISTS progress (
    key TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    topic TEXT NOT NULL,
    completion REAL NOT NULL,
    time_spent INTEGER NOT NULL,
    last_accessed DATETIME NOT NULL,
    mastery TEXT NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_progress_user ON progress(user_id);

CREATE TABLE IF NOT EXISTS chat_messages (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    sources_json TEXT NOT NULL DEFAULT '[]',
    voice_input INTEGER NOT NULL DEFAULT 0,
    timestamp DATETIME NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chat_user ON chat_messages(user_id);
CREATE INDEX IF NOT EXISTS idx_chat_synced ON chat_messages(synced);

CREATE TABLE IF NOT EXISTS achievements (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    xp_reward INTEGER NOT NULL,
    unlocked_at DATETIME NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements(user_id);

-- Durable sync queue. position preserves FIFO order within a drain pass.
CREATE TABLE IF NOT EXISTS sync_queue (
    position INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    payload_json TEXT NOT NULL,
    enqueued_at DATETIME NOT NULL
);

-- Download queue, persisted separately from lesson content so an
-- interrupted session can resume partial transfers.
CREATE TABLE IF NOT EXISTS download_queue (
    content_id TEXT PRIMARY KEY,
    content_json TEXT NOT NULL,
    status TEXT NOT NULL,
    downloaded_bytes INTEGER NOT NULL DEFAULT 0,
    queued_at DATETIME NOT NULL,
    started_at DATETIME,
    completed_at DATETIME,
    error TEXT NOT NULL DEFAULT '',
    retry_count INTEGER NOT NULL DEFAULT 0
);
`
