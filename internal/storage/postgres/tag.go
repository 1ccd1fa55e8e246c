package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"newsroom/internal/domain"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

func (s *TagStore) Create(ctx context.Context, tag *domain.Tag) error {
	query := `
		INSERT INTO tags (slug, description, image_url)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, tag.Slug, tag.Description, tag.ImageURL).Scan(&tag.ID)
	return mapError(err)
}

// List returns every tag with the number of published posts carrying it.
func (s *TagStore) List(ctx context.Context) ([]domain.Tag, error) {
	query := `
		SELECT t.id, t.slug, t.description, t.image_url, COUNT(p.id) AS post_count
		FROM tags t
		LEFT JOIN post_tags pt ON pt.tag_id = t.id
		LEFT JOIN posts p ON p.id = pt.post_id AND p.status = 'PUBLISHED'
		GROUP BY t.id
		ORDER BY t.slug`

	var tags []domain.Tag
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &tags, query)
	return tags, err
}

// SetPostTags replaces the tags of a post, creating tags that do not exist yet.
func (s *TagStore) SetPostTags(ctx context.Context, postID uuid.UUID, slugs []string) error {
	q := GetExecutor(ctx, s.db)

	if _, err := q.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("clear post tags: %w", err)
	}
	if len(slugs) == 0 {
		return nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO tags (slug)
		SELECT unnest($1::text[])
		ON CONFLICT (slug) DO NOTHING`, pq.Array(slugs))
	if err != nil {
		return fmt.Errorf("upsert tags: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO post_tags (post_id, tag_id)
		SELECT $1, id FROM tags WHERE slug = ANY($2)
		ON CONFLICT DO NOTHING`, postID, pq.Array(slugs))
	if err != nil {
		return fmt.Errorf("link tags: %w", err)
	}
	return nil
}
