package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"newsroom/internal/domain"
)

type MemberStore struct {
	s *Store
}

func (m *MemberStore) ListSubscribed(ctx context.Context) ([]domain.Member, error) {
	defer m.s.lock(ctx)()

	var out []domain.Member
	for _, member := range m.s.st.members {
		if !member.Unsubscribed {
			out = append(out, withOpenRate(member))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemberStore) SetUnsubscribed(ctx context.Context, id uuid.UUID, unsubscribed bool) error {
	defer m.s.lock(ctx)()

	member, ok := m.s.st.members[id]
	if !ok {
		return domain.ErrNotFound
	}
	member.Unsubscribed = unsubscribed
	member.UpdatedAt = m.s.now()
	m.s.st.members[id] = member
	return nil
}

func (m *MemberStore) FindByContactID(ctx context.Context, contactID string) (*domain.Member, error) {
	defer m.s.lock(ctx)()

	for _, member := range m.s.st.members {
		if member.ResendContactID != nil && *member.ResendContactID == contactID {
			out := withOpenRate(member)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemberStore) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	defer m.s.lock(ctx)()

	if member, ok := m.byEmail(domain.NormalizeEmail(email)); ok {
		out := withOpenRate(member)
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MemberStore) ApplyMutation(ctx context.Context, id uuid.UUID, mut domain.MemberMutation) error {
	defer m.s.lock(ctx)()

	member, ok := m.s.st.members[id]
	if !ok {
		return domain.ErrNotFound
	}
	member = mut.Apply(member)
	member.UpdatedAt = m.s.now()
	m.s.st.members[id] = member
	return nil
}

func (m *MemberStore) Upsert(ctx context.Context, member *domain.Member, unsubscribed *bool) error {
	defer m.s.lock(ctx)()

	email := domain.NormalizeEmail(member.Email)
	now := m.s.now()

	if member.ResendContactID != nil {
		for _, other := range m.s.st.members {
			if other.Email != email && other.ResendContactID != nil && *other.ResendContactID == *member.ResendContactID {
				return domain.ErrConflict
			}
		}
	}

	existing, ok := m.byEmail(email)
	if !ok {
		stored := *member
		stored.ID = uuid.New()
		stored.Email = email
		stored.Unsubscribed = unsubscribed != nil && *unsubscribed
		stored.CreatedAt = now
		stored.UpdatedAt = now
		m.s.st.members[stored.ID] = stored
		*member = withOpenRate(stored)
		return nil
	}

	existing.FirstName = member.FirstName
	existing.LastName = member.LastName
	if unsubscribed != nil {
		existing.Unsubscribed = *unsubscribed
	}
	if member.Location != nil {
		existing.Location = member.Location
	}
	if member.ResendContactID != nil {
		existing.ResendContactID = member.ResendContactID
	}
	existing.UpdatedAt = now
	m.s.st.members[existing.ID] = existing
	*member = withOpenRate(existing)
	return nil
}

func (m *MemberStore) byEmail(email string) (domain.Member, bool) {
	for _, member := range m.s.st.members {
		if member.Email == email {
			return member, true
		}
	}
	return domain.Member{}, false
}

func withOpenRate(member domain.Member) domain.Member {
	member.OpenRate = domain.OpenRate(member.EmailsDelivered, member.EmailsOpened)
	return member
}
