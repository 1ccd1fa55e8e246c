package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"newsroom/internal/domain"
)

const postColumns = `p.id, p.title, p.content, p.post_url, p.status, p.publish_date, p.excerpt,
	p.featured, p.newsletter, p.notify_status, p.notify_claimed_at, p.notified_at,
	p.created_at, p.updated_at`

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) FindDueScheduled(ctx context.Context, now time.Time) ([]domain.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts p
		WHERE p.status = 'SCHEDULED' AND p.publish_date <= $1
		ORDER BY p.publish_date`

	return s.selectPosts(ctx, query, now)
}

// PublishDue flips every due scheduled post to PUBLISHED in one statement.
// Concurrent callers each receive a disjoint set of ids: the second UPDATE
// re-evaluates the predicate after the first commits.
func (s *PostStore) PublishDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE posts SET
			status = 'PUBLISHED',
			notify_status = CASE
				WHEN newsletter AND notify_status = 'NONE' THEN 'PENDING'
				ELSE notify_status
			END,
			updated_at = $1
		WHERE status = 'SCHEDULED' AND publish_date <= $1
		RETURNING id`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids, query, now); err != nil {
		return nil, fmt.Errorf("publish due posts: %w", err)
	}
	return ids, nil
}

func (s *PostStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p WHERE p.id = $1`
	return s.getPost(ctx, query, id)
}

func (s *PostStore) GetPublishedBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p WHERE p.post_url = $1 AND p.status = 'PUBLISHED'`
	return s.getPost(ctx, query, slug)
}

func (s *PostStore) ListPublished(ctx context.Context, tagSlug string) ([]domain.Post, error) {
	if tagSlug == "" {
		query := `SELECT ` + postColumns + `
			FROM posts p
			WHERE p.status = 'PUBLISHED'
			ORDER BY p.publish_date DESC`
		return s.selectPosts(ctx, query)
	}

	query := `SELECT ` + postColumns + `
		FROM posts p
		INNER JOIN post_tags pt ON pt.post_id = p.id
		INNER JOIN tags t ON t.id = pt.tag_id
		WHERE p.status = 'PUBLISHED' AND t.slug = $1
		ORDER BY p.publish_date DESC`
	return s.selectPosts(ctx, query, tagSlug)
}

func (s *PostStore) Create(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (
			title, content, post_url, status, publish_date, excerpt,
			featured, newsletter, notify_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING id, created_at, updated_at`

	q := GetExecutor(ctx, s.db)
	err := q.QueryRowxContext(ctx, query,
		post.Title,
		post.Content,
		post.PostURL,
		post.Status,
		post.PublishDate,
		post.Excerpt,
		post.Featured,
		post.Newsletter,
		post.NotifyStatus,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return mapError(err)
	}

	return s.setAuthors(ctx, q, post.ID, post.AuthorIDs)
}

// Update rewrites the editable fields of a post. A post that is already
// PUBLISHED cannot be moved to another status, including when it was
// published concurrently after the caller read it.
func (s *PostStore) Update(ctx context.Context, post *domain.Post) error {
	query := `
		UPDATE posts SET
			title = $2,
			content = $3,
			post_url = $4,
			status = $5,
			publish_date = $6,
			excerpt = $7,
			featured = $8,
			newsletter = $9,
			notify_status = CASE
				WHEN $5 = 'PUBLISHED' AND status <> 'PUBLISHED' AND $9 THEN 'PENDING'
				ELSE notify_status
			END,
			updated_at = now()
		WHERE id = $1 AND (status <> 'PUBLISHED' OR $5 = 'PUBLISHED')
		RETURNING notify_status, updated_at`

	q := GetExecutor(ctx, s.db)
	err := q.QueryRowxContext(ctx, query,
		post.ID,
		post.Title,
		post.Content,
		post.PostURL,
		string(post.Status),
		post.PublishDate,
		post.Excerpt,
		post.Featured,
		post.Newsletter,
	).Scan(&post.NotifyStatus, &post.UpdatedAt)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, domain.ErrNotFound) {
			if _, getErr := s.GetByID(ctx, post.ID); getErr == nil {
				return domain.NewValidationError("status", "a published post cannot be unpublished")
			}
		}
		return err
	}

	return s.setAuthors(ctx, q, post.ID, post.AuthorIDs)
}

func (s *PostStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *PostStore) ClaimNotification(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error) {
	query := `
		UPDATE posts SET
			notify_status = 'SENDING',
			notify_claimed_at = $2,
			updated_at = $2
		WHERE id = $1
			AND status = 'PUBLISHED'
			AND (
				notify_status IN ('NONE', 'PENDING', 'FAILED')
				OR (notify_status = 'SENDING' AND (notify_claimed_at IS NULL OR notify_claimed_at < $3))
			)`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, now, now.Add(-lease))
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostStore) CompleteNotification(ctx context.Context, id uuid.UUID, status domain.NotifyStatus, at time.Time) error {
	query := `
		UPDATE posts SET
			notify_status = $2::text,
			notified_at = CASE WHEN $2::text = 'SENT' THEN $3::timestamptz ELSE notified_at END,
			notify_claimed_at = NULL,
			updated_at = $3::timestamptz
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, string(status), at)
	return err
}

func (s *PostStore) ListAwaitingNotification(ctx context.Context, now time.Time, lease time.Duration) ([]domain.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts p
		WHERE p.status = 'PUBLISHED'
			AND p.newsletter
			AND (
				p.notify_status = 'PENDING'
				OR (p.notify_status = 'SENDING' AND (p.notify_claimed_at IS NULL OR p.notify_claimed_at < $1))
			)
		ORDER BY p.publish_date`

	return s.selectPosts(ctx, query, now.Add(-lease))
}

func (s *PostStore) getPost(ctx context.Context, query string, args ...any) (*domain.Post, error) {
	q := GetExecutor(ctx, s.db)

	var post domain.Post
	if err := sqlx.GetContext(ctx, q, &post, query, args...); err != nil {
		return nil, mapError(err)
	}

	posts := []domain.Post{post}
	if err := s.loadRelations(ctx, q, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func (s *PostStore) selectPosts(ctx context.Context, query string, args ...any) ([]domain.Post, error) {
	q := GetExecutor(ctx, s.db)

	var posts []domain.Post
	if err := sqlx.SelectContext(ctx, q, &posts, query, args...); err != nil {
		return nil, err
	}
	if err := s.loadRelations(ctx, q, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

type postTagRow struct {
	PostID uuid.UUID `db:"post_id"`
	domain.Tag
}

type postAuthorRow struct {
	PostID uuid.UUID `db:"post_id"`
	domain.Author
}

func (s *PostStore) loadRelations(ctx context.Context, q sqlx.QueryerContext, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(posts))
	index := make(map[uuid.UUID]int, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		index[p.ID] = i
		posts[i].Tags = []domain.Tag{}
		posts[i].Authors = []domain.Author{}
	}

	var tags []postTagRow
	err := sqlx.SelectContext(ctx, q, &tags, `
		SELECT pt.post_id, t.id, t.slug, t.description, t.image_url
		FROM post_tags pt
		INNER JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id = ANY($1::uuid[])
		ORDER BY t.slug`, uuidArray(ids))
	if err != nil {
		return fmt.Errorf("load post tags: %w", err)
	}
	for _, row := range tags {
		i := index[row.PostID]
		posts[i].Tags = append(posts[i].Tags, row.Tag)
	}

	var authors []postAuthorRow
	err = sqlx.SelectContext(ctx, q, &authors, `
		SELECT pa.post_id, a.id, a.name, a.email
		FROM post_authors pa
		INNER JOIN authors a ON a.id = pa.author_id
		WHERE pa.post_id = ANY($1::uuid[])
		ORDER BY a.name`, uuidArray(ids))
	if err != nil {
		return fmt.Errorf("load post authors: %w", err)
	}
	for _, row := range authors {
		i := index[row.PostID]
		posts[i].Authors = append(posts[i].Authors, row.Author)
		posts[i].AuthorIDs = append(posts[i].AuthorIDs, row.Author.ID)
	}

	return nil
}

func (s *PostStore) setAuthors(ctx context.Context, q sqlx.ExtContext, postID uuid.UUID, authorIDs []uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM post_authors WHERE post_id = $1`, postID); err != nil {
		return err
	}
	if len(authorIDs) == 0 {
		return nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO post_authors (post_id, author_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, postID, uuidArray(authorIDs))
	if err != nil {
		return fmt.Errorf("link authors: %w", mapError(err))
	}
	return nil
}
