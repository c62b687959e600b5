package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS guilds (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	icon_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS channels (
	id TEXT PRIMARY KEY,
	guild_id TEXT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	is_voice INTEGER NOT NULL DEFAULT 0,
	can_view INTEGER NOT NULL DEFAULT 1,
	can_talk INTEGER NOT NULL DEFAULT 1,
	position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_channels_guild ON channels(guild_id, position);
CREATE TABLE IF NOT EXISTS members (
	guild_id TEXT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	roles TEXT NOT NULL DEFAULT '[]',
	avatar_url TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (guild_id, id)
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id TEXT NOT NULL,
	author TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id DESC);
`

// SQLiteDirectory persists chat data in a SQLite database.
type SQLiteDirectory struct {
	db      *sql.DB
	history int

	mu        sync.RWMutex
	listeners []Listener
}

// OpenSQLiteDirectory opens (creating if needed) the database at path and
// applies the schema. An empty database is seeded with the demo guild when
// seedDemo is set.
func OpenSQLiteDirectory(path string, history int, seedDemo bool) (*SQLiteDirectory, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if history < 1 {
		history = 50
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	d := &SQLiteDirectory{db: db, history: history}
	if seedDemo {
		if err := d.seedIfEmpty(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *SQLiteDirectory) seedIfEmpty(ctx context.Context) error {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guilds`).Scan(&count); err != nil {
		return fmt.Errorf("count guilds: %w", err)
	}
	if count > 0 {
		return nil
	}

	data := demo(time.Now())
	for _, g := range data.guilds {
		if err := d.UpsertGuild(ctx, g); err != nil {
			return err
		}
	}
	for _, ch := range data.channels {
		if err := d.upsertChannel(ctx, ch); err != nil {
			return err
		}
	}
	for i, m := range data.members {
		if err := d.upsertMember(ctx, m, i); err != nil {
			return err
		}
	}
	for _, msg := range data.messages {
		if err := d.insertMessage(ctx, msg); err != nil {
			return err
		}
	}
	logger.WithComponent("directory").Info("seeded empty chat database with the demo guild")
	return nil
}

func (d *SQLiteDirectory) Guilds(ctx context.Context) ([]Guild, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, icon_url FROM guilds ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query guilds: %w", err)
	}
	defer rows.Close()

	var out []Guild
	for rows.Next() {
		var g Guild
		if err := rows.Scan(&g.ID, &g.Name, &g.IconURL); err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertGuild inserts or renames a guild.
func (d *SQLiteDirectory) UpsertGuild(ctx context.Context, g Guild) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO guilds (id, name, icon_url) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, icon_url = excluded.icon_url`,
		g.ID, g.Name, g.IconURL)
	if err != nil {
		return fmt.Errorf("upsert guild: %w", err)
	}
	return nil
}

func (d *SQLiteDirectory) Channels(ctx context.Context, guildID string) ([]Channel, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, guild_id, name, category, is_voice, can_view, can_talk, position
		 FROM channels WHERE guild_id = ? ORDER BY position, rowid`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.GuildID, &ch.Name, &ch.Category, &ch.Voice, &ch.CanView, &ch.CanTalk, &ch.Position); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (d *SQLiteDirectory) Members(ctx context.Context, guildID string, limit int) ([]Member, error) {
	if limit < 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, guild_id, name, roles, avatar_url FROM members
		 WHERE guild_id = ? ORDER BY position, rowid LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		var roles string
		if err := rows.Scan(&m.ID, &m.GuildID, &m.Name, &roles, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if err := json.Unmarshal([]byte(roles), &m.Roles); err != nil {
			m.Roles = nil
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetMembers replaces the member list of a guild.
func (d *SQLiteDirectory) SetMembers(ctx context.Context, guildID string, members []Member) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM members WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for i, m := range members {
		m.GuildID = guildID
		if err := d.upsertMember(ctx, m, i); err != nil {
			return err
		}
	}
	return nil
}

func (d *SQLiteDirectory) upsertMember(ctx context.Context, m Member, position int) error {
	roles, err := json.Marshal(m.Roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	if m.Roles == nil {
		roles = []byte("[]")
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO members (guild_id, id, name, roles, avatar_url, position) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id, id) DO UPDATE SET name = excluded.name, roles = excluded.roles,
		 avatar_url = excluded.avatar_url, position = excluded.position`,
		m.GuildID, m.ID, m.Name, string(roles), m.AvatarURL, position)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (d *SQLiteDirectory) LatestMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit < 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT channel_id, author, content, created_at FROM messages
		 WHERE channel_id = ? ORDER BY id DESC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var created int64
		if err := rows.Scan(&msg.ChannelID, &msg.Author, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = time.UnixMilli(created)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (d *SQLiteDirectory) PostMessage(ctx context.Context, msg Message) error {
	msg, err := normalizeMessage(msg)
	if err != nil {
		return err
	}
	var exists int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE id = ?`, msg.ChannelID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup channel: %w", err)
	}
	if exists == 0 {
		return ErrUnknownChannel
	}
	if err := d.insertMessage(ctx, msg); err != nil {
		return err
	}
	notifyMessage(d.snapshotListeners(), msg.ChannelID)
	return nil
}

func (d *SQLiteDirectory) insertMessage(ctx context.Context, msg Message) error {
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO messages (channel_id, author, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.ChannelID, msg.Author, msg.Content, msg.Timestamp.UnixMilli()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM messages WHERE channel_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE channel_id = ? ORDER BY id DESC LIMIT ?)`,
		msg.ChannelID, msg.ChannelID, d.history); err != nil {
		return fmt.Errorf("trim message history: %w", err)
	}
	return nil
}

func (d *SQLiteDirectory) UpsertChannel(ctx context.Context, ch Channel) error {
	ch.ID = strings.TrimSpace(ch.ID)
	ch.GuildID = strings.TrimSpace(ch.GuildID)
	if ch.ID == "" || ch.GuildID == "" {
		return fmt.Errorf("%w: channel id and guild id are required", ErrInvalidInput)
	}
	var exists int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guilds WHERE id = ?`, ch.GuildID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup guild: %w", err)
	}
	if exists == 0 {
		return ErrUnknownGuild
	}
	if err := d.upsertChannel(ctx, ch); err != nil {
		return err
	}
	notifyChannelUpdate(d.snapshotListeners(), ch.GuildID)
	return nil
}

func (d *SQLiteDirectory) upsertChannel(ctx context.Context, ch Channel) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO channels (id, guild_id, name, category, is_voice, can_view, can_talk, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET guild_id = excluded.guild_id, name = excluded.name,
		 category = excluded.category, is_voice = excluded.is_voice, can_view = excluded.can_view,
		 can_talk = excluded.can_talk, position = excluded.position`,
		ch.ID, ch.GuildID, ch.Name, ch.Category, ch.Voice, ch.CanView, ch.CanTalk, ch.Position)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (d *SQLiteDirectory) RegisterListener(l Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *SQLiteDirectory) snapshotListeners() []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Listener(nil), d.listeners...)
}

func (d *SQLiteDirectory) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
