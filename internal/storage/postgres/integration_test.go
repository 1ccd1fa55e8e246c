//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"newsroom/internal/domain"
	"newsroom/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB

	posts   *PostStore
	tags    *TagStore
	members *MemberStore
	events  *EventStore
	tx      *TransactionManager
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_content.up.sql"),
			filepath.Join(migrationsPath, "002_create_members.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.posts = NewPostStore(db)
	s.tags = NewTagStore(db)
	s.members = NewMemberStore(db)
	s.events = NewEventStore(db)
	s.tx = NewTransactionManager(db)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM post_tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM post_authors")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM posts")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM authors")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM members")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM processed_events")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createPost(slug string, status domain.PostStatus, publishDate *time.Time, newsletter bool) *domain.Post {
	post := &domain.Post{
		Title:        "Post " + slug,
		Content:      `{"type":"doc"}`,
		PostURL:      slug,
		Status:       status,
		PublishDate:  publishDate,
		Newsletter:   newsletter,
		NotifyStatus: domain.NotifyStatusNone,
	}
	s.Require().NoError(s.posts.Create(s.ctx, post))
	return post
}

func (s *PostgresIntegrationSuite) TestPublishDue_InclusiveBoundary() {
	now := time.Now().UTC().Truncate(time.Microsecond)

	atNow := s.createPost("at-now", domain.PostStatusScheduled, utils.Ptr(now), false)
	past := s.createPost("past", domain.PostStatusScheduled, utils.Ptr(now.Add(-time.Hour)), true)
	future := s.createPost("future", domain.PostStatusScheduled, utils.Ptr(now.Add(time.Second)), false)
	draft := s.createPost("draft", domain.PostStatusDraft, utils.Ptr(now.Add(-time.Hour)), false)

	due, err := s.posts.FindDueScheduled(s.ctx, now)
	s.Require().NoError(err)
	s.Len(due, 2)

	ids, err := s.posts.PublishDue(s.ctx, now)
	s.Require().NoError(err)
	s.ElementsMatch([]uuid.UUID{atNow.ID, past.ID}, ids)

	got, err := s.posts.GetByID(s.ctx, past.ID)
	s.Require().NoError(err)
	s.Equal(domain.PostStatusPublished, got.Status)
	s.Equal(domain.NotifyStatusPending, got.NotifyStatus)

	got, err = s.posts.GetByID(s.ctx, atNow.ID)
	s.Require().NoError(err)
	s.Equal(domain.NotifyStatusNone, got.NotifyStatus)

	got, err = s.posts.GetByID(s.ctx, future.ID)
	s.Require().NoError(err)
	s.Equal(domain.PostStatusScheduled, got.Status)

	got, err = s.posts.GetByID(s.ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(domain.PostStatusDraft, got.Status)

	again, err := s.posts.PublishDue(s.ctx, now)
	s.Require().NoError(err)
	s.Empty(again)
}

func (s *PostgresIntegrationSuite) TestPublishDue_ConcurrentCallersPartitionPosts() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 20; i++ {
		s.createPost(uuid.NewString(), domain.PostStatusScheduled, utils.Ptr(now.Add(-time.Minute)), false)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total []uuid.UUID
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := s.posts.PublishDue(s.ctx, now)
			s.NoError(err)
			mu.Lock()
			total = append(total, ids...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	for _, id := range total {
		s.False(seen[id], "post %s published twice", id)
		seen[id] = true
	}
	s.Len(seen, 20)
}

func (s *PostgresIntegrationSuite) TestCreate_DuplicateSlugConflicts() {
	s.createPost("same-slug", domain.PostStatusDraft, nil, false)

	err := s.posts.Create(s.ctx, &domain.Post{
		Title: "Other", Content: "x", PostURL: "same-slug",
		Status: domain.PostStatusDraft, NotifyStatus: domain.NotifyStatusNone,
	})
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *PostgresIntegrationSuite) TestUpdate_PublishedPostCannotBeUnpublished() {
	now := time.Now().UTC()
	post := s.createPost("live", domain.PostStatusPublished, utils.Ptr(now), false)

	post.Status = domain.PostStatusDraft
	err := s.posts.Update(s.ctx, post)
	s.ErrorIs(err, domain.ErrValidation)

	post.Status = domain.PostStatusPublished
	post.Title = "Renamed"
	s.NoError(s.posts.Update(s.ctx, post))

	err = s.posts.Update(s.ctx, &domain.Post{ID: uuid.New(), Status: domain.PostStatusDraft})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestUpdate_PublishingNewsletterMarksPending() {
	post := s.createPost("draft-news", domain.PostStatusDraft, nil, true)

	post.Status = domain.PostStatusPublished
	post.PublishDate = utils.Ptr(time.Now().UTC())
	s.Require().NoError(s.posts.Update(s.ctx, post))
	s.Equal(domain.NotifyStatusPending, post.NotifyStatus)
}

func (s *PostgresIntegrationSuite) TestClaimAndCompleteNotification() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	lease := 10 * time.Minute
	post := s.createPost("news", domain.PostStatusScheduled, utils.Ptr(now.Add(-time.Minute)), true)
	_, err := s.posts.PublishDue(s.ctx, now)
	s.Require().NoError(err)

	awaiting, err := s.posts.ListAwaitingNotification(s.ctx, now, lease)
	s.Require().NoError(err)
	s.Len(awaiting, 1)

	ok, err := s.posts.ClaimNotification(s.ctx, post.ID, now, lease)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.posts.ClaimNotification(s.ctx, post.ID, now.Add(time.Minute), lease)
	s.Require().NoError(err)
	s.False(ok, "live claim must not be taken twice")

	ok, err = s.posts.ClaimNotification(s.ctx, post.ID, now.Add(time.Hour), lease)
	s.Require().NoError(err)
	s.True(ok, "stale claim can be taken over")

	s.Require().NoError(s.posts.CompleteNotification(s.ctx, post.ID, domain.NotifyStatusSent, now))

	got, err := s.posts.GetByID(s.ctx, post.ID)
	s.Require().NoError(err)
	s.Equal(domain.NotifyStatusSent, got.NotifyStatus)
	s.NotNil(got.NotifiedAt)

	ok, err = s.posts.ClaimNotification(s.ctx, post.ID, now.Add(2*time.Hour), lease)
	s.Require().NoError(err)
	s.False(ok, "sent is terminal")
}

func (s *PostgresIntegrationSuite) TestTags_SetAndList() {
	live := s.createPost("tagged", domain.PostStatusPublished, utils.Ptr(time.Now().UTC()), false)
	draft := s.createPost("tagged-draft", domain.PostStatusDraft, nil, false)

	s.Require().NoError(s.tags.SetPostTags(s.ctx, live.ID, []string{"go", "databases"}))
	s.Require().NoError(s.tags.SetPostTags(s.ctx, draft.ID, []string{"go"}))
	s.Require().NoError(s.tags.Create(s.ctx, &domain.Tag{Slug: "empty", Description: utils.Ptr("no posts")}))

	tags, err := s.tags.List(s.ctx)
	s.Require().NoError(err)
	counts := make(map[string]int)
	for _, t := range tags {
		counts[t.Slug] = t.PostCount
	}
	s.Equal(map[string]int{"databases": 1, "empty": 0, "go": 1}, counts)

	posts, err := s.posts.ListPublished(s.ctx, "go")
	s.Require().NoError(err)
	s.Require().Len(posts, 1)
	s.Len(posts[0].Tags, 2)

	err = s.tags.Create(s.ctx, &domain.Tag{Slug: "go"})
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *PostgresIntegrationSuite) TestMembers_UpsertMutateAndList() {
	a := &domain.Member{Email: "A@Example.com", FirstName: "Ada", ResendContactID: utils.Ptr("c_1")}
	b := &domain.Member{Email: "b@example.com"}
	s.Require().NoError(s.members.Upsert(s.ctx, a, nil))
	s.Require().NoError(s.members.Upsert(s.ctx, b, utils.Ptr(true)))

	subscribed, err := s.members.ListSubscribed(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(subscribed, 1)
	s.Equal("a@example.com", subscribed[0].Email)

	found, err := s.members.FindByContactID(s.ctx, "c_1")
	s.Require().NoError(err)
	s.Equal(a.ID, found.ID)

	s.Require().NoError(s.members.ApplyMutation(s.ctx, a.ID, domain.MemberMutation{DeliveredDelta: 1}))
	s.Require().NoError(s.members.ApplyMutation(s.ctx, a.ID, domain.MemberMutation{DeliveredDelta: 1}))
	s.Require().NoError(s.members.ApplyMutation(s.ctx, a.ID, domain.MemberMutation{OpenedDelta: 1}))

	yes := true
	s.Require().NoError(s.members.ApplyMutation(s.ctx, a.ID, domain.MemberMutation{Unsubscribed: &yes}))
	s.Require().NoError(s.members.ApplyMutation(s.ctx, a.ID, domain.MemberMutation{Unsubscribed: &yes}))

	found, err = s.members.FindByEmail(s.ctx, "a@example.com")
	s.Require().NoError(err)
	s.True(found.Unsubscribed)
	s.Equal(2, found.EmailsDelivered)
	s.InDelta(0.5, found.OpenRate, 1e-9)

	again := &domain.Member{Email: "a@example.com", FirstName: "Ada"}
	s.Require().NoError(s.members.Upsert(s.ctx, again, nil))
	s.Equal(a.ID, again.ID)
	s.True(again.Unsubscribed)

	s.Require().NoError(s.members.Upsert(s.ctx, again, utils.Ptr(false)))
	s.False(again.Unsubscribed)

	err = s.members.ApplyMutation(s.ctx, uuid.New(), domain.MemberMutation{OpenedDelta: 1})
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.members.FindByEmail(s.ctx, "nobody@example.com")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestEventStore_TransactionalIdempotency() {
	at := time.Now().UTC()

	fresh, err := s.events.MarkProcessed(s.ctx, "evt_1", "complained", at)
	s.Require().NoError(err)
	s.True(fresh)

	fresh, err = s.events.MarkProcessed(s.ctx, "evt_1", "complained", at)
	s.Require().NoError(err)
	s.False(fresh)

	boom := errors.New("boom")
	err = s.tx.WithTransaction(s.ctx, func(ctx context.Context) error {
		fresh, err := s.events.MarkProcessed(ctx, "evt_2", "bounced", at)
		s.Require().NoError(err)
		s.True(fresh)
		return boom
	})
	s.ErrorIs(err, boom)

	fresh, err = s.events.MarkProcessed(s.ctx, "evt_2", "bounced", at)
	s.Require().NoError(err)
	s.True(fresh, "rolled back event id must be recordable again")
}
