// Package sqlite provides a CGO-free SQLite implementation of the Chorus
// storage interfaces, used for local development and tests.
package sqlite

// Schema contains the SQL statements to create the database schema for
// SQLite. JSON payloads are stored as TEXT; the embedding is a JSON float
// array ranked in Go by cosine similarity.
const Schema = `
CREATE TABLE IF NOT EXISTS ai_entities (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    display_name TEXT,
    system_prompt TEXT,
    model_name TEXT NOT NULL DEFAULT 'gpt-4o-mini',
    temperature REAL NOT NULL DEFAULT 0.7,
    max_tokens INTEGER NOT NULL DEFAULT 1024,
    room_response_strategy TEXT NOT NULL DEFAULT 'room_mention_only',
    conversation_response_strategy TEXT NOT NULL DEFAULT 'conv_on_questions',
    response_probability REAL NOT NULL DEFAULT 0.3,
    cooldown_seconds INTEGER,
    status TEXT NOT NULL DEFAULT 'online',
    is_active INTEGER NOT NULL DEFAULT 1,
    current_room_id TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    sender_user_id TEXT,
    sender_ai_id TEXT,
    sender_name TEXT,
    room_id TEXT,
    conversation_id TEXT,
    message_type TEXT NOT NULL DEFAULT 'text',
    sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    in_reply_to_id TEXT,

    CHECK ((sender_user_id IS NULL) != (sender_ai_id IS NULL)),
    CHECK ((room_id IS NULL) != (conversation_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages (room_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_messages_conv_sent ON messages (conversation_id, sent_at);

CREATE TABLE IF NOT EXISTS ai_memories (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL REFERENCES ai_entities(id) ON DELETE CASCADE,
    user_ids TEXT,
    conversation_id TEXT,
    summary TEXT NOT NULL,
    content TEXT,
    keywords TEXT,
    memory_type TEXT NOT NULL,
    fact_hash TEXT,
    importance_score REAL NOT NULL DEFAULT 1.0,
    metadata TEXT,
    embedding TEXT,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ai_memories_entity_type ON ai_memories (entity_id, memory_type);
CREATE INDEX IF NOT EXISTS idx_ai_memories_entity_conv ON ai_memories (entity_id, conversation_id);

CREATE UNIQUE INDEX IF NOT EXISTS uq_ai_memories_fact_hash
    ON ai_memories (entity_id, fact_hash)
    WHERE fact_hash IS NOT NULL;

CREATE TABLE IF NOT EXISTS ai_cooldowns (
    entity_id TEXT NOT NULL,
    context_key TEXT NOT NULL,
    last_response_at DATETIME NOT NULL,
    PRIMARY KEY (entity_id, context_key)
);
`
