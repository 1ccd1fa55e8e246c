package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"newsroom/internal/domain"
	"newsroom/internal/service/mocks"
	"newsroom/internal/storage/memory"
	"newsroom/testdata/utils"
)

type DeliveryServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	store     *memory.Store
	publisher *mocks.MockEventPublisher
	service   *DeliveryService
	member    domain.Member
}

func (s *DeliveryServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = memory.New()
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	s.service = NewDeliveryService(
		s.store.Members(),
		s.store.Events(),
		s.store,
		nil,
		s.publisher,
		time.Hour,
		zerolog.Nop(),
	)

	s.member = domain.Member{
		Email:           "reader@example.com",
		FirstName:       "Ada",
		ResendContactID: utils.Ptr("contact_1"),
	}
	s.Require().NoError(s.store.Members().Upsert(context.Background(), &s.member, nil))
}

func (s *DeliveryServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDeliveryServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DeliveryServiceTestSuite))
}

func event(id, body string) domain.VerifiedEvent {
	return domain.VerifiedEvent{ID: id, Timestamp: time.Now(), Body: []byte(body)}
}

func (s *DeliveryServiceTestSuite) reload() domain.Member {
	m, err := s.store.Members().FindByEmail(context.Background(), s.member.Email)
	s.Require().NoError(err)
	return *m
}

func (s *DeliveryServiceTestSuite) TestComplaint_RedeliveryIsDuplicate() {
	ctx := context.Background()
	body := `{"type":"email.complained","created_at":"2026-03-01T10:00:00Z","data":{"email_id":"e1","to":["Reader@Example.com"]}}`

	s.publisher.EXPECT().PublishMemberUnsubscribed(gomock.Any(), s.member.ID, "complained", gomock.Any()).Return(nil).Times(1)

	outcome, err := s.service.Apply(ctx, event("evt_1", body))
	s.NoError(err)
	s.Equal(domain.OutcomeApplied, outcome)
	s.True(s.reload().Unsubscribed)

	outcome, err = s.service.Apply(ctx, event("evt_1", body))
	s.NoError(err)
	s.Equal(domain.OutcomeDuplicate, outcome)
	s.True(s.reload().Unsubscribed)
}

func (s *DeliveryServiceTestSuite) TestConcurrentRedelivery_AppliedOnce() {
	ctx := context.Background()
	ev := event("evt_race", `{"type":"email.delivered","data":{"contact_id":"contact_1"}}`)

	const workers = 16
	outcomes := make([]domain.DeliveryOutcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcomes[i], errs[i] = s.service.Apply(ctx, ev)
		}()
	}
	close(start)
	wg.Wait()

	applied := 0
	for i := range workers {
		s.Require().NoError(errs[i])
		switch outcomes[i] {
		case domain.OutcomeApplied:
			applied++
		case domain.OutcomeDuplicate:
		default:
			s.Failf("unexpected outcome", "worker %d got %q", i, outcomes[i])
		}
	}
	s.Equal(1, applied)
	s.Equal(1, s.reload().EmailsDelivered)
}

func (s *DeliveryServiceTestSuite) TestDeliveredAndOpened_UpdateOpenRate() {
	ctx := context.Background()

	_, err := s.service.Apply(ctx, event("evt_d1", `{"type":"email.delivered","data":{"contact_id":"contact_1"}}`))
	s.Require().NoError(err)
	_, err = s.service.Apply(ctx, event("evt_d2", `{"type":"email.delivered","data":{"contact_id":"contact_1"}}`))
	s.Require().NoError(err)
	_, err = s.service.Apply(ctx, event("evt_o1", `{"type":"email.opened","data":{"contact_id":"contact_1"}}`))
	s.Require().NoError(err)
	// redelivered open must not count twice
	_, err = s.service.Apply(ctx, event("evt_o1", `{"type":"email.opened","data":{"contact_id":"contact_1"}}`))
	s.Require().NoError(err)

	m := s.reload()
	s.Equal(2, m.EmailsDelivered)
	s.Equal(1, m.EmailsOpened)
	s.InDelta(0.5, m.OpenRate, 0.0001)
	s.False(m.Unsubscribed)
}

func (s *DeliveryServiceTestSuite) TestBounce_SetsBouncedAt() {
	ctx := context.Background()

	s.publisher.EXPECT().PublishMemberUnsubscribed(gomock.Any(), s.member.ID, "bounced", gomock.Any()).Return(nil)

	outcome, err := s.service.Apply(ctx, event("evt_b", `{"type":"email.bounced","created_at":"2026-03-01T10:00:00Z","data":{"to":["reader@example.com"]}}`))

	s.NoError(err)
	s.Equal(domain.OutcomeApplied, outcome)
	m := s.reload()
	s.True(m.Unsubscribed)
	s.Require().NotNil(m.BouncedAt)
	s.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), m.BouncedAt.UTC())
}

func (s *DeliveryServiceTestSuite) TestContactUpdated_SetsValue() {
	ctx := context.Background()

	s.publisher.EXPECT().PublishMemberUnsubscribed(gomock.Any(), s.member.ID, "contact.updated", gomock.Any()).Return(nil)

	_, err := s.service.Apply(ctx, event("evt_c1", `{"type":"contact.updated","data":{"id":"contact_1","unsubscribed":true}}`))
	s.Require().NoError(err)
	s.True(s.reload().Unsubscribed)

	_, err = s.service.Apply(ctx, event("evt_c2", `{"type":"contact.updated","data":{"id":"contact_1","unsubscribed":false}}`))
	s.Require().NoError(err)
	s.False(s.reload().Unsubscribed)
}

func (s *DeliveryServiceTestSuite) TestAlreadyUnsubscribed_NotAnnouncedAgain() {
	ctx := context.Background()
	s.Require().NoError(s.store.Members().SetUnsubscribed(ctx, s.member.ID, true))

	outcome, err := s.service.Apply(ctx, event("evt_u", `{"type":"email.unsubscribed","data":{"contact_id":"contact_1"}}`))

	s.NoError(err)
	s.Equal(domain.OutcomeApplied, outcome)
}

func (s *DeliveryServiceTestSuite) TestIgnoredEvents() {
	ctx := context.Background()

	cases := map[string]domain.VerifiedEvent{
		"malformed":      event("evt_m", `{not json`),
		"unknown type":   event("evt_x", `{"type":"domain.created","data":{}}`),
		"clicked":        event("evt_k", `{"type":"email.clicked","data":{"contact_id":"contact_1"}}`),
		"unknown member": event("evt_n", `{"type":"email.complained","data":{"to":["nobody@example.com"]}}`),
	}
	for name, ev := range cases {
		s.Run(name, func() {
			outcome, err := s.service.Apply(ctx, ev)
			s.NoError(err)
			s.Equal(domain.OutcomeIgnored, outcome)
		})
	}
	s.False(s.reload().Unsubscribed)
}

func (s *DeliveryServiceTestSuite) TestCacheHitShortCircuits() {
	ctx := context.Background()
	cache := mocks.NewMockProcessedCache(s.ctrl)
	service := NewDeliveryService(s.store.Members(), s.store.Events(), s.store, cache, nil, time.Hour, zerolog.Nop())

	cache.EXPECT().IsProcessed(gomock.Any(), "evt_cached").Return(true, nil)

	outcome, err := service.Apply(ctx, event("evt_cached", `{"type":"email.complained","data":{"contact_id":"contact_1"}}`))

	s.NoError(err)
	s.Equal(domain.OutcomeDuplicate, outcome)
	s.False(s.reload().Unsubscribed)
}

func (s *DeliveryServiceTestSuite) TestCacheErrorFallsBackToStore() {
	ctx := context.Background()
	cache := mocks.NewMockProcessedCache(s.ctrl)
	service := NewDeliveryService(s.store.Members(), s.store.Events(), s.store, cache, nil, time.Hour, zerolog.Nop())

	cache.EXPECT().IsProcessed(gomock.Any(), "evt_r").Return(false, errors.New("redis down"))
	cache.EXPECT().MarkProcessed(gomock.Any(), "evt_r", time.Hour).Return(errors.New("redis down"))

	outcome, err := service.Apply(ctx, event("evt_r", `{"type":"email.complained","data":{"contact_id":"contact_1"}}`))

	s.NoError(err)
	s.Equal(domain.OutcomeApplied, outcome)
	s.True(s.reload().Unsubscribed)
}

func (s *DeliveryServiceTestSuite) TestStoreErrorIsReturned() {
	ctx := context.Background()
	events := mocks.NewMockEventStore(s.ctrl)
	service := NewDeliveryService(s.store.Members(), events, s.store, nil, nil, time.Hour, zerolog.Nop())

	events.EXPECT().MarkProcessed(gomock.Any(), "evt_e", "email.complained", gomock.Any()).Return(false, errors.New("db down"))

	_, err := service.Apply(ctx, event("evt_e", `{"type":"email.complained","data":{"contact_id":"contact_1"}}`))

	s.Error(err)
	s.False(s.reload().Unsubscribed)
}
