package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	created    []Appointment
	createErr  error
	listed     []Appointment
	listErr    error
	listCalls  int
	stale      []Appointment
	staleErr   error
	completed  []uuid.UUID
	completeFn func(id uuid.UUID) (*Appointment, error)
}

func (f *fakeStore) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, appt)
	return &appt, nil
}

func (f *fakeStore) ListByInsuredID(ctx context.Context, insuredID string) ([]Appointment, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func (f *fakeStore) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	f.completed = append(f.completed, id)
	if f.completeFn != nil {
		return f.completeFn(id)
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	if f.staleErr != nil {
		return nil, f.staleErr
	}
	return f.stale, nil
}

type fakePublisher struct {
	published []Appointment
	errFor    map[uuid.UUID]error
	err       error
}

func (f *fakePublisher) PublishAppointment(ctx context.Context, appt *Appointment) error {
	if f.err != nil {
		return f.err
	}
	if err, ok := f.errFor[appt.ID]; ok {
		return err
	}
	f.published = append(f.published, *appt)
	return nil
}

func newTestService(store *fakeStore, pub *fakePublisher) *Service {
	return NewService(store, pub, zap.NewNop())
}

func TestCreateAppointment(t *testing.T) {
	t.Run("Creates Pending And Publishes", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		appt, err := svc.Create(context.Background(), NewAppointment{
			InsuredID:  "00042",
			ScheduleID: 100,
			Country:    CountryCL,
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, appt.ID)
		assert.Equal(t, StatusPending, appt.Status)
		assert.Equal(t, "00042", appt.InsuredID)
		assert.Equal(t, CountryCL, appt.Country)
		assert.True(t, appt.CreatedAt.Equal(appt.UpdatedAt), "createdAt and updatedAt must match at creation")

		require.Len(t, store.created, 1)
		require.Len(t, pub.published, 1)
		assert.Equal(t, appt.ID, pub.published[0].ID)
		assert.Equal(t, CountryCL, pub.published[0].Country)
	})

	t.Run("Defaults Country To PE", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		appt, err := svc.Create(context.Background(), NewAppointment{
			InsuredID:  "12345",
			ScheduleID: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, CountryPE, appt.Country)
	})

	t.Run("Rejects Bad Insured ID Before Side Effects", func(t *testing.T) {
		for _, insuredID := range []string{"", "1234", "123456", "12a45", "-1234"} {
			store := &fakeStore{}
			pub := &fakePublisher{}
			svc := newTestService(store, pub)

			_, err := svc.Create(context.Background(), NewAppointment{
				InsuredID:  insuredID,
				ScheduleID: 1,
				Country:    CountryPE,
			})
			assert.ErrorIs(t, err, ErrInvalidInsuredID, "insuredId %q", insuredID)
			assert.Empty(t, store.created)
			assert.Empty(t, pub.published)
		}
	})

	t.Run("Rejects Missing Schedule ID", func(t *testing.T) {
		store := &fakeStore{}
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.Create(context.Background(), NewAppointment{
			InsuredID: "12345",
			Country:   CountryPE,
		})
		assert.ErrorIs(t, err, ErrInvalidScheduleID)
		assert.Empty(t, store.created)
	})

	t.Run("Rejects Unknown Country Before Side Effects", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		_, err := svc.Create(context.Background(), NewAppointment{
			InsuredID:  "12345",
			ScheduleID: 1,
			Country:    "BR",
		})
		assert.ErrorIs(t, err, ErrInvalidCountry)
		assert.Empty(t, store.created)
		assert.Empty(t, pub.published)
	})

	t.Run("Store Failure Skips Publish", func(t *testing.T) {
		store := &fakeStore{createErr: errors.New("store down")}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		_, err := svc.Create(context.Background(), NewAppointment{
			InsuredID:  "12345",
			ScheduleID: 1,
			Country:    CountryPE,
		})
		assert.Error(t, err)
		assert.Empty(t, pub.published)
	})

	t.Run("Publish Failure Propagates After Store Write", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{err: errors.New("bus down")}
		svc := newTestService(store, pub)

		_, err := svc.Create(context.Background(), NewAppointment{
			InsuredID:  "12345",
			ScheduleID: 1,
			Country:    CountryPE,
		})
		assert.Error(t, err)
		// The record stays pending in the store; the reconcile sweep
		// picks it up later.
		assert.Len(t, store.created, 1)
	})
}

func TestListByInsured(t *testing.T) {
	t.Run("Rejects Bad Insured ID Before Store Call", func(t *testing.T) {
		store := &fakeStore{}
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.ListByInsured(context.Background(), "12ab5")
		assert.ErrorIs(t, err, ErrInvalidInsuredID)
		assert.Zero(t, store.listCalls)
	})

	t.Run("Returns Store Rows", func(t *testing.T) {
		store := &fakeStore{listed: []Appointment{
			{ID: uuid.New(), InsuredID: "12345", Status: StatusPending},
			{ID: uuid.New(), InsuredID: "12345", Status: StatusCompleted},
		}}
		svc := newTestService(store, &fakePublisher{})

		appts, err := svc.ListByInsured(context.Background(), "12345")
		require.NoError(t, err)
		assert.Len(t, appts, 2)
	})
}

func TestRepublishStalePending(t *testing.T) {
	t.Run("Republishes Each Stale Record", func(t *testing.T) {
		stale := []Appointment{
			{ID: uuid.New(), InsuredID: "11111", Status: StatusPending, Country: CountryPE},
			{ID: uuid.New(), InsuredID: "22222", Status: StatusPending, Country: CountryCL},
		}
		store := &fakeStore{stale: stale}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		n, err := svc.RepublishStalePending(context.Background(), 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Len(t, pub.published, 2)
	})

	t.Run("Publish Failure Isolated Per Record", func(t *testing.T) {
		stale := []Appointment{
			{ID: uuid.New(), Country: CountryPE},
			{ID: uuid.New(), Country: CountryPE},
		}
		store := &fakeStore{stale: stale}
		pub := &fakePublisher{errFor: map[uuid.UUID]error{stale[0].ID: errors.New("bus hiccup")}}
		svc := newTestService(store, pub)

		n, err := svc.RepublishStalePending(context.Background(), 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, pub.published, 1)
	})
}
