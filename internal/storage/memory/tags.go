package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/google/uuid"

	"newsroom/internal/domain"
)

type TagStore struct {
	s *Store
}

func (t *TagStore) Create(ctx context.Context, tag *domain.Tag) error {
	defer t.s.lock(ctx)()

	if _, ok := t.s.st.tags[tag.Slug]; ok {
		return domain.ErrConflict
	}
	tag.ID = uuid.New()
	stored := *tag
	stored.PostCount = 0
	t.s.st.tags[tag.Slug] = stored
	return nil
}

func (t *TagStore) List(ctx context.Context) ([]domain.Tag, error) {
	defer t.s.lock(ctx)()

	counts := make(map[string]int)
	for id, slugs := range t.s.st.postTags {
		post, ok := t.s.st.posts[id]
		if !ok || post.Status != domain.PostStatusPublished {
			continue
		}
		for _, slug := range slugs {
			counts[slug]++
		}
	}

	out := make([]domain.Tag, 0, len(t.s.st.tags))
	for slug, tag := range t.s.st.tags {
		tag.PostCount = counts[slug]
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (t *TagStore) SetPostTags(ctx context.Context, postID uuid.UUID, slugs []string) error {
	defer t.s.lock(ctx)()

	if _, ok := t.s.st.posts[postID]; !ok {
		return domain.ErrNotFound
	}

	var linked []string
	for _, slug := range slugs {
		if _, ok := t.s.st.tags[slug]; !ok {
			t.s.st.tags[slug] = domain.Tag{ID: uuid.New(), Slug: slug}
		}
		if !slices.Contains(linked, slug) {
			linked = append(linked, slug)
		}
	}
	t.s.st.postTags[postID] = linked
	return nil
}
