package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type PgRepository struct {
	db *pgxpool.Pool
}

func NewPgRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// QuerySimilar orders one edition's articles by cosine distance to the query
// vector. Score is rewritten as a similarity so downstream code works in
// ascending-is-worse space.
func (r *PgRepository) QuerySimilar(ctx context.Context, embedding []float32, version string, topN int) ([]Article, error) {
	if topN <= 0 {
		topN = 10
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx, `
		SELECT
			a.id, a.numero, a.titre, a.contenu, a.version,
			a.tome, a.livre, a.chapitre,
			1 - (e.embedding <=> $1) AS score
		FROM article a
		JOIN article_embedding e ON a.id = e.article_id
		WHERE a.version = $2
		ORDER BY e.embedding <=> $1
		LIMIT $3
	`, vec, version, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanArticles(rows, true)
}

func (r *PgRepository) GetArticlesByNumeros(ctx context.Context, version string, numeros []string) ([]Article, error) {
	if len(numeros) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT
			a.id, a.numero, a.titre, a.contenu, a.version,
			a.tome, a.livre, a.chapitre
		FROM article a
		WHERE a.version = $1 AND a.numero = ANY($2)
	`, version, numeros)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanArticles(rows, false)
}

func (r *PgRepository) InsertArticle(ctx context.Context, a *Article, embedding []float32) (int64, error) {
	var id int64

	err := r.db.QueryRow(ctx, `
		INSERT INTO article (numero, titre, contenu, version, tome, livre, chapitre)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (numero, version) DO UPDATE SET
			titre = EXCLUDED.titre,
			contenu = EXCLUDED.contenu,
			tome = EXCLUDED.tome,
			livre = EXCLUDED.livre,
			chapitre = EXCLUDED.chapitre,
			updated_at = now()
		RETURNING id
	`,
		a.Numero,
		a.Titre,
		a.Contenu,
		a.Version,
		a.Tome,
		a.Livre,
		a.Chapitre,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	if embedding != nil {
		vec := pgvector.NewVector(embedding)
		_, err = r.db.Exec(ctx, `
			INSERT INTO article_embedding (article_id, embedding)
			VALUES ($1, $2)
			ON CONFLICT (article_id) DO UPDATE SET embedding = EXCLUDED.embedding
		`, id, vec)
		if err != nil {
			return 0, err
		}
	}

	return id, nil
}

func (r *PgRepository) CreateMessage(ctx context.Context, conversationID, role, content string, citations []Citation, metrics *TurnMetrics) (*Message, error) {
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Citations:      citations,
		Metrics:        metrics,
	}

	var citationsJSON, metricsJSON []byte
	var err error
	if len(citations) > 0 {
		if citationsJSON, err = json.Marshal(citations); err != nil {
			return nil, fmt.Errorf("marshal citations: %w", err)
		}
	}
	if metrics != nil {
		if metricsJSON, err = json.Marshal(metrics); err != nil {
			return nil, fmt.Errorf("marshal metrics: %w", err)
		}
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO message (id, conversation_id, role, content, citations, metrics)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`,
		msg.ID,
		conversationID,
		role,
		content,
		citationsJSON,
		metricsJSON,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// LoadRecentHistory returns the last messages of a conversation in
// chronological order, ready to hand to the model.
func (r *PgRepository) LoadRecentHistory(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
		SELECT role, content
		FROM message
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reversed []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := make([]ChatMessage, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		history = append(history, reversed[i])
	}
	return history, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanArticles(rows pgxRows, withScore bool) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		dest := []any{&a.ID, &a.Numero, &a.Titre, &a.Contenu, &a.Version, &a.Tome, &a.Livre, &a.Chapitre}
		if withScore {
			dest = append(dest, &a.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

var _ Repository = (*PgRepository)(nil)
