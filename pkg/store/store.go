// Package store persists the social surface of the app: captured
// posts, direct messages and albums. Postgres via pgx, with embedded
// goose migrations applied on open.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store is the database handle. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, verifies the connection and applies any
// pending migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(databaseURL); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections.
func (s *Store) Close() {
	s.pool.Close()
}

// migrate runs goose against a throwaway database/sql handle; pgxpool
// connections cannot be handed to goose directly.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Post is one captured photo with its generated insights.
type Post struct {
	ID             string
	AuthorName     string
	Caption        string
	Vibe           string
	SuggestedAlbum string
	Likes          int
	CreatedAt      time.Time
}

// CreatePost stores a new post and returns it with its generated ID.
func (s *Store) CreatePost(ctx context.Context, authorName, caption, vibe, suggestedAlbum string) (*Post, error) {
	p := &Post{
		ID:             uuid.NewString(),
		AuthorName:     authorName,
		Caption:        caption,
		Vibe:           vibe,
		SuggestedAlbum: suggestedAlbum,
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO posts (id, author_name, caption, vibe, suggested_album)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		p.ID, p.AuthorName, p.Caption, p.Vibe, p.SuggestedAlbum)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return p, nil
}

// ListFeed returns the newest posts first.
func (s *Store) ListFeed(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, author_name, caption, vibe, suggested_album, likes, created_at
		 FROM posts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorName, &p.Caption, &p.Vibe, &p.SuggestedAlbum, &p.Likes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// LikePost increments a post's like count.
func (s *Store) LikePost(ctx context.Context, postID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET likes = likes + 1 WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("like post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Message is one line of a direct chat, including chats with the
// companion itself.
type Message struct {
	ID        string
	ChatID    string
	Sender    string
	Body      string
	CreatedAt time.Time
}

// AppendMessage adds a message to a chat.
func (s *Store) AppendMessage(ctx context.Context, chatID, sender, body string) (*Message, error) {
	m := &Message{ID: uuid.NewString(), ChatID: chatID, Sender: sender, Body: body}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, chat_id, sender, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		m.ID, m.ChatID, m.Sender, m.Body)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// RecentMessages returns the last limit messages of a chat in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, sender, body, created_at FROM (
		   SELECT id, chat_id, sender, body, created_at
		   FROM messages WHERE chat_id = $1
		   ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Album groups posts under a generated name.
type Album struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	PostIDs     []string
}

// CreateAlbum stores a new album.
func (s *Store) CreateAlbum(ctx context.Context, name, description string) (*Album, error) {
	a := &Album{ID: uuid.NewString(), Name: name, Description: description}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO albums (id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		a.ID, a.Name, a.Description)
	if err := row.Scan(&a.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert album: %w", err)
	}
	return a, nil
}

// AddToAlbum links a post into an album. Adding the same post twice is
// a no-op.
func (s *Store) AddToAlbum(ctx context.Context, albumID, postID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO album_posts (album_id, post_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, albumID, postID)
	if err != nil {
		return fmt.Errorf("add to album: %w", err)
	}
	return nil
}

// GetAlbum fetches an album with its post IDs in insertion order.
func (s *Store) GetAlbum(ctx context.Context, albumID string) (*Album, error) {
	var a Album
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM albums WHERE id = $1`, albumID)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query album: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT post_id FROM album_posts WHERE album_id = $1 ORDER BY added_at ASC`, albumID)
	if err != nil {
		return nil, fmt.Errorf("query album posts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan album post: %w", err)
		}
		a.PostIDs = append(a.PostIDs, id)
	}
	return &a, rows.Err()
}
