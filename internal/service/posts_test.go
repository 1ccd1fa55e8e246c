package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"newsroom/internal/domain"
	"newsroom/internal/storage/memory"
	"newsroom/testdata/utils"
)

type PostServiceTestSuite struct {
	suite.Suite
	store   *memory.Store
	service *PostService
	now     time.Time
}

func (s *PostServiceTestSuite) SetupTest() {
	s.store = memory.New()
	s.service = NewPostService(s.store.Posts(), s.store.Tags(), s.store, nil, zerolog.Nop())
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func TestPostServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PostServiceTestSuite))
}

func (s *PostServiceTestSuite) TestCreate_DefaultsToDraftWithSlugFromTitle() {
	post, err := s.service.Create(context.Background(), PostInput{
		Title:   "Héllo, World!",
		Content: "{}",
		Tags:    []string{"Go Lang", "go-lang"},
	}, s.now)

	s.Require().NoError(err)
	s.Equal(domain.PostStatusDraft, post.Status)
	s.Equal("hello-world", post.PostURL)
	s.Nil(post.PublishDate)
	s.Require().Len(post.Tags, 1)
	s.Equal("go-lang", post.Tags[0].Slug)
}

func (s *PostServiceTestSuite) TestCreate_ScheduledNeedsFutureDate() {
	ctx := context.Background()

	_, err := s.service.Create(ctx, PostInput{Title: "A", Content: "x", Status: domain.PostStatusScheduled}, s.now)
	s.ErrorIs(err, domain.ErrValidation)

	past := s.now.Add(-time.Minute).Format(time.RFC3339)
	_, err = s.service.Create(ctx, PostInput{Title: "A", Content: "x", Status: domain.PostStatusScheduled, PublishDate: &past}, s.now)
	s.ErrorIs(err, domain.ErrValidation)

	atNow := s.now.Format(time.RFC3339)
	_, err = s.service.Create(ctx, PostInput{Title: "A", Content: "x", Status: domain.PostStatusScheduled, PublishDate: &atNow}, s.now)
	s.ErrorIs(err, domain.ErrValidation)

	future := s.now.Add(time.Hour).Format(time.RFC3339)
	post, err := s.service.Create(ctx, PostInput{Title: "A", Content: "x", Status: domain.PostStatusScheduled, PublishDate: &future}, s.now)
	s.Require().NoError(err)
	s.Equal(domain.PostStatusScheduled, post.Status)
}

func (s *PostServiceTestSuite) TestCreate_MalformedDate() {
	bad := "01/03/2026"
	_, err := s.service.Create(context.Background(), PostInput{Title: "A", Content: "x", PublishDate: &bad}, s.now)

	var verr *domain.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("publishDate", verr.Field)
}

func (s *PostServiceTestSuite) TestCreate_RequiredFields() {
	_, err := s.service.Create(context.Background(), PostInput{Content: "x"}, s.now)

	var verr *domain.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("title", verr.Field)
}

func (s *PostServiceTestSuite) TestCreate_PublishedNewsletterIsPending() {
	post, err := s.service.Create(context.Background(), PostInput{
		Title:      "Now",
		Content:    "x",
		Status:     domain.PostStatusPublished,
		Newsletter: true,
	}, s.now)

	s.Require().NoError(err)
	s.Require().NotNil(post.PublishDate)
	s.True(post.PublishDate.Equal(s.now))
	s.Equal(domain.NotifyStatusPending, post.NotifyStatus)
}

func (s *PostServiceTestSuite) TestCreate_DuplicateSlug() {
	ctx := context.Background()
	_, err := s.service.Create(ctx, PostInput{Title: "Same", Content: "x"}, s.now)
	s.Require().NoError(err)

	_, err = s.service.Create(ctx, PostInput{Title: "same", Content: "y"}, s.now)
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *PostServiceTestSuite) TestUpdate_CannotUnpublish() {
	ctx := context.Background()
	post, err := s.service.Create(ctx, PostInput{Title: "Live", Content: "x", Status: domain.PostStatusPublished}, s.now)
	s.Require().NoError(err)

	_, err = s.service.Update(ctx, post.ID, PostInput{Title: "Live", Content: "x", Status: domain.PostStatusDraft}, s.now)
	s.ErrorIs(err, domain.ErrValidation)

	updated, err := s.service.Update(ctx, post.ID, PostInput{Title: "Live again", Content: "y", PostURL: "live"}, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(domain.PostStatusPublished, updated.Status)
	s.True(updated.PublishDate.Equal(s.now))
}

func (s *PostServiceTestSuite) TestPublicReads_OnlyPublished() {
	ctx := context.Background()
	_, err := s.service.Create(ctx, PostInput{Title: "Draft", Content: "x", Tags: []string{"go"}}, s.now)
	s.Require().NoError(err)
	live, err := s.service.Create(ctx, PostInput{Title: "Live", Content: "x", Status: domain.PostStatusPublished, Tags: []string{"go"}}, s.now)
	s.Require().NoError(err)

	_, err = s.service.Get(ctx, "draft")
	s.ErrorIs(err, domain.ErrNotFound)

	got, err := s.service.Get(ctx, "live")
	s.Require().NoError(err)
	s.Equal(live.ID, got.ID)

	list, err := s.service.ListPublished(ctx, "go")
	s.Require().NoError(err)
	s.Len(list, 1)

	tags, err := s.service.ListTags(ctx)
	s.Require().NoError(err)
	s.Require().Len(tags, 1)
	s.Equal(1, tags[0].PostCount)
}

func (s *PostServiceTestSuite) TestCreateTag() {
	ctx := context.Background()
	tag, err := s.service.CreateTag(ctx, TagInput{Slug: "Release Notes", Description: utils.Ptr("Changelog")})
	s.Require().NoError(err)
	s.Equal("release-notes", tag.Slug)

	_, err = s.service.CreateTag(ctx, TagInput{Slug: "release notes"})
	s.ErrorIs(err, domain.ErrConflict)

	_, err = s.service.CreateTag(ctx, TagInput{Slug: "x", ImageURL: utils.Ptr("not a url")})
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *PostServiceTestSuite) TestDelete() {
	ctx := context.Background()
	post, err := s.service.Create(ctx, PostInput{Title: "Gone", Content: "x"}, s.now)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(ctx, post.ID))
	s.ErrorIs(s.service.Delete(ctx, post.ID), domain.ErrNotFound)
}
