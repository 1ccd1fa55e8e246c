package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/domain"
)

type PostStore struct {
	s *Store
}

func (p *PostStore) FindDueScheduled(ctx context.Context, now time.Time) ([]domain.Post, error) {
	defer p.s.lock(ctx)()

	var due []domain.Post
	for _, post := range p.s.st.posts {
		if post.IsDue(now) {
			due = append(due, p.hydrate(post))
		}
	}
	sortByPublishDate(due, false)
	return due, nil
}

func (p *PostStore) PublishDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	defer p.s.lock(ctx)()

	var ids []uuid.UUID
	for id, post := range p.s.st.posts {
		if !post.IsDue(now) {
			continue
		}
		post.Status = domain.PostStatusPublished
		if post.Newsletter && post.NotifyStatus == domain.NotifyStatusNone {
			post.NotifyStatus = domain.NotifyStatusPending
		}
		post.UpdatedAt = now
		p.s.st.posts[id] = post
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *PostStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	defer p.s.lock(ctx)()

	post, ok := p.s.st.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := p.hydrate(post)
	return &out, nil
}

func (p *PostStore) GetPublishedBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	defer p.s.lock(ctx)()

	for _, post := range p.s.st.posts {
		if post.PostURL == slug && post.Status == domain.PostStatusPublished {
			out := p.hydrate(post)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (p *PostStore) ListPublished(ctx context.Context, tagSlug string) ([]domain.Post, error) {
	defer p.s.lock(ctx)()

	var out []domain.Post
	for id, post := range p.s.st.posts {
		if post.Status != domain.PostStatusPublished {
			continue
		}
		if tagSlug != "" && !slices.Contains(p.s.st.postTags[id], tagSlug) {
			continue
		}
		out = append(out, p.hydrate(post))
	}
	sortByPublishDate(out, true)
	return out, nil
}

func (p *PostStore) Create(ctx context.Context, post *domain.Post) error {
	defer p.s.lock(ctx)()

	if p.slugTaken(post.PostURL, uuid.Nil) {
		return domain.ErrConflict
	}
	if err := p.checkAuthors(post.AuthorIDs); err != nil {
		return err
	}

	now := p.s.now()
	post.ID = uuid.New()
	post.CreatedAt = now
	post.UpdatedAt = now
	p.store(*post)
	return nil
}

func (p *PostStore) Update(ctx context.Context, post *domain.Post) error {
	defer p.s.lock(ctx)()

	current, ok := p.s.st.posts[post.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status == domain.PostStatusPublished && post.Status != domain.PostStatusPublished {
		return domain.NewValidationError("status", "a published post cannot be unpublished")
	}
	if p.slugTaken(post.PostURL, post.ID) {
		return domain.ErrConflict
	}
	if err := p.checkAuthors(post.AuthorIDs); err != nil {
		return err
	}

	next := current
	next.Title = post.Title
	next.Content = post.Content
	next.PostURL = post.PostURL
	next.Status = post.Status
	next.PublishDate = post.PublishDate
	next.Excerpt = post.Excerpt
	next.Featured = post.Featured
	next.Newsletter = post.Newsletter
	next.AuthorIDs = post.AuthorIDs
	if post.Status == domain.PostStatusPublished && current.Status != domain.PostStatusPublished && post.Newsletter {
		next.NotifyStatus = domain.NotifyStatusPending
	}
	next.UpdatedAt = p.s.now()
	p.store(next)

	post.NotifyStatus = next.NotifyStatus
	post.UpdatedAt = next.UpdatedAt
	return nil
}

func (p *PostStore) Delete(ctx context.Context, id uuid.UUID) error {
	defer p.s.lock(ctx)()

	if _, ok := p.s.st.posts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(p.s.st.posts, id)
	delete(p.s.st.postTags, id)
	delete(p.s.st.postAuthors, id)
	return nil
}

func (p *PostStore) ClaimNotification(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error) {
	defer p.s.lock(ctx)()

	post, ok := p.s.st.posts[id]
	if !ok || !post.ClaimableAt(now, lease) {
		return false, nil
	}
	claimedAt := now
	post.NotifyStatus = domain.NotifyStatusSending
	post.NotifyClaimedAt = &claimedAt
	post.UpdatedAt = now
	p.s.st.posts[id] = post
	return true, nil
}

func (p *PostStore) CompleteNotification(ctx context.Context, id uuid.UUID, status domain.NotifyStatus, at time.Time) error {
	defer p.s.lock(ctx)()

	post, ok := p.s.st.posts[id]
	if !ok {
		return nil
	}
	post.NotifyStatus = status
	if status == domain.NotifyStatusSent {
		notifiedAt := at
		post.NotifiedAt = &notifiedAt
	}
	post.NotifyClaimedAt = nil
	post.UpdatedAt = at
	p.s.st.posts[id] = post
	return nil
}

func (p *PostStore) ListAwaitingNotification(ctx context.Context, now time.Time, lease time.Duration) ([]domain.Post, error) {
	defer p.s.lock(ctx)()

	var out []domain.Post
	for _, post := range p.s.st.posts {
		if post.AwaitingNotification(now, lease) {
			out = append(out, p.hydrate(post))
		}
	}
	sortByPublishDate(out, false)
	return out, nil
}

func (p *PostStore) store(post domain.Post) {
	p.s.st.postAuthors[post.ID] = slices.Clone(post.AuthorIDs)
	post.Tags = nil
	post.Authors = nil
	post.AuthorIDs = nil
	p.s.st.posts[post.ID] = post
}

func (p *PostStore) hydrate(post domain.Post) domain.Post {
	post.Tags = []domain.Tag{}
	for _, slug := range p.s.st.postTags[post.ID] {
		if tag, ok := p.s.st.tags[slug]; ok {
			tag.PostCount = 0
			post.Tags = append(post.Tags, tag)
		}
	}
	sort.Slice(post.Tags, func(i, j int) bool { return post.Tags[i].Slug < post.Tags[j].Slug })

	post.Authors = []domain.Author{}
	post.AuthorIDs = nil
	for _, id := range p.s.st.postAuthors[post.ID] {
		if author, ok := p.s.st.authors[id]; ok {
			post.Authors = append(post.Authors, author)
			post.AuthorIDs = append(post.AuthorIDs, id)
		}
	}
	return post
}

func (p *PostStore) slugTaken(slug string, except uuid.UUID) bool {
	for id, post := range p.s.st.posts {
		if id != except && post.PostURL == slug {
			return true
		}
	}
	return false
}

func (p *PostStore) checkAuthors(ids []uuid.UUID) error {
	for _, id := range ids {
		if _, ok := p.s.st.authors[id]; !ok {
			return domain.NewValidationError("authorIds", "unknown author "+id.String())
		}
	}
	return nil
}

func sortByPublishDate(posts []domain.Post, desc bool) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i].PublishDate, posts[j].PublishDate
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		if desc {
			return a.After(*b)
		}
		return a.Before(*b)
	})
}
