// Package memory is an in-process store with the same semantics as the
// postgres stores. It backs local development and tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/domain"
)

type ctxKey struct{}

type state struct {
	posts       map[uuid.UUID]domain.Post
	postTags    map[uuid.UUID][]string
	postAuthors map[uuid.UUID][]uuid.UUID
	authors     map[uuid.UUID]domain.Author
	tags        map[string]domain.Tag
	members     map[uuid.UUID]domain.Member
	events      map[string]time.Time
}

func newState() *state {
	return &state{
		posts:       make(map[uuid.UUID]domain.Post),
		postTags:    make(map[uuid.UUID][]string),
		postAuthors: make(map[uuid.UUID][]uuid.UUID),
		authors:     make(map[uuid.UUID]domain.Author),
		tags:        make(map[string]domain.Tag),
		members:     make(map[uuid.UUID]domain.Member),
		events:      make(map[string]time.Time),
	}
}

// clone copies the maps. Stored values are never mutated in place, so the
// values themselves can be shared.
func (st *state) clone() *state {
	return &state{
		posts:       maps.Clone(st.posts),
		postTags:    maps.Clone(st.postTags),
		postAuthors: maps.Clone(st.postAuthors),
		authors:     maps.Clone(st.authors),
		tags:        maps.Clone(st.tags),
		members:     maps.Clone(st.members),
		events:      maps.Clone(st.events),
	}
}

// Store serializes every operation behind one mutex. A transaction holds the
// mutex for its whole duration and restores a snapshot on error.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	posts   *PostStore
	tags    *TagStore
	members *MemberStore
	events  *EventStore
}

func New() *Store {
	s := &Store{st: newState(), now: time.Now}
	s.posts = &PostStore{s: s}
	s.tags = &TagStore{s: s}
	s.members = &MemberStore{s: s}
	s.events = &EventStore{s: s}
	return s
}

func (s *Store) Posts() *PostStore     { return s.posts }
func (s *Store) Tags() *TagStore       { return s.tags }
func (s *Store) Members() *MemberStore { return s.members }
func (s *Store) Events() *EventStore   { return s.events }

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, ctxKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// AddAuthor seeds an author; authors are managed outside this service.
func (s *Store) AddAuthor(author domain.Author) domain.Author {
	s.mu.Lock()
	defer s.mu.Unlock()

	if author.ID == uuid.Nil {
		author.ID = uuid.New()
	}
	s.st.authors[author.ID] = author
	return author
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(ctxKey{}).(*Store)
	return owner == s
}

func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}
