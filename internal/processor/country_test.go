package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
	"github.com/medgrid/appointment-pipeline/internal/bus"
	"github.com/medgrid/appointment-pipeline/internal/detail"
)

type fakeDetailStore struct {
	rows []detail.AppointmentDetail
	err  error
}

func (f *fakeDetailStore) Insert(ctx context.Context, d *detail.AppointmentDetail) (*detail.AppointmentDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	if d.ID == "" {
		d.ID = fmt.Sprintf("row-%d", len(f.rows)+1)
	}
	f.rows = append(f.rows, *d)
	return d, nil
}

type fakeEmitter struct {
	entries []bus.Entry
	err     error
}

func (f *fakeEmitter) EmitCompletion(ctx context.Context, entry bus.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

const peMessage = `{"id":"A1","insuredId":"12345","scheduleId":100,"countryISO":"PE"}`

func newCountryUnderTest(details DetailStore, emitter CompletionEmitter) *Country {
	return NewCountry(appointment.CountryPE, details, emitter, "appointment-events", zap.NewNop())
}

func TestCountryHandleMessage(t *testing.T) {
	t.Run("Persists Detail And Emits Completion", func(t *testing.T) {
		details := &fakeDetailStore{}
		emitter := &fakeEmitter{}
		p := newCountryUnderTest(details, emitter)

		err := p.HandleMessage(context.Background(), bus.Message{ID: "1-0", Body: []byte(peMessage)})
		require.NoError(t, err)

		require.Len(t, details.rows, 1)
		row := details.rows[0]
		assert.Equal(t, "12345", row.InsuredID)
		assert.Equal(t, int64(100), row.ScheduleID)
		assert.Equal(t, "PE", row.CountryISO)
		assert.Equal(t, detail.StatusCompleted, row.Status)

		require.Len(t, emitter.entries, 1)
		entry := emitter.entries[0]
		assert.Equal(t, "appointment-events", entry.EventBusName)
		assert.Equal(t, bus.SourceAppointmentService, entry.Source)
		assert.Equal(t, bus.DetailTypeCompleted, entry.DetailType)

		var payload struct {
			ID         string `json:"id"`
			CountryISO string `json:"countryISO"`
			Detail     struct {
				ID                string                    `json:"id"`
				AppointmentDetail *detail.AppointmentDetail `json:"appointmentDetail"`
			} `json:"detail"`
		}
		require.NoError(t, json.Unmarshal([]byte(entry.Detail), &payload))
		assert.Equal(t, "A1", payload.ID)
		assert.Equal(t, "PE", payload.CountryISO)
		assert.Equal(t, "A1", payload.Detail.ID)
		require.NotNil(t, payload.Detail.AppointmentDetail)
		assert.Equal(t, row.ID, payload.Detail.AppointmentDetail.ID)
	})

	t.Run("Decodes Wrapped Envelope", func(t *testing.T) {
		details := &fakeDetailStore{}
		emitter := &fakeEmitter{}
		p := newCountryUnderTest(details, emitter)

		wrapped, err := json.Marshal(map[string]string{"Message": peMessage})
		require.NoError(t, err)

		require.NoError(t, p.HandleMessage(context.Background(), bus.Message{Body: wrapped}))
		assert.Len(t, details.rows, 1)
	})

	t.Run("Malformed Message Touches Nothing", func(t *testing.T) {
		details := &fakeDetailStore{}
		emitter := &fakeEmitter{}
		p := newCountryUnderTest(details, emitter)

		err := p.HandleMessage(context.Background(), bus.Message{Body: []byte(`{"bad`)})
		assert.ErrorIs(t, err, bus.ErrUnparsableMessage)
		assert.Empty(t, details.rows)
		assert.Empty(t, emitter.entries)
	})

	t.Run("Batch Isolation Around Malformed Message", func(t *testing.T) {
		details := &fakeDetailStore{}
		emitter := &fakeEmitter{}
		p := newCountryUnderTest(details, emitter)

		bodies := [][]byte{
			[]byte(`{"id":"A1","insuredId":"11111","scheduleId":1,"countryISO":"PE"}`),
			[]byte(`{"id":"A2","insuredId":"22222","scheduleId":2,"countryISO":"PE"}`),
			[]byte(`not even json`),
			[]byte(`{"id":"A4","insuredId":"44444","scheduleId":4,"countryISO":"PE"}`),
			[]byte(`{"id":"A5","insuredId":"55555","scheduleId":5,"countryISO":"PE"}`),
		}

		failures := 0
		for i, body := range bodies {
			if err := p.HandleMessage(context.Background(), bus.Message{ID: fmt.Sprintf("1-%d", i), Body: body}); err != nil {
				failures++
			}
		}

		assert.Equal(t, 1, failures)
		assert.Len(t, details.rows, len(bodies)-1)
		assert.Len(t, emitter.entries, len(bodies)-1)
	})

	t.Run("Unavailable Store Names The Country", func(t *testing.T) {
		p := newCountryUnderTest(nil, &fakeEmitter{})

		err := p.HandleMessage(context.Background(), bus.Message{Body: []byte(peMessage)})
		require.ErrorIs(t, err, ErrDetailStoreUnavailable)
		assert.Contains(t, err.Error(), "PE")
	})

	t.Run("Emit Failure Keeps The Insert", func(t *testing.T) {
		details := &fakeDetailStore{}
		emitter := &fakeEmitter{err: errors.New("event bus down")}
		p := newCountryUnderTest(details, emitter)

		err := p.HandleMessage(context.Background(), bus.Message{Body: []byte(peMessage)})
		assert.Error(t, err)
		// Not transactional across store and bus: the row stays.
		assert.Len(t, details.rows, 1)
	})

	t.Run("Duplicate Delivery Creates Duplicate Rows", func(t *testing.T) {
		details := &fakeDetailStore{}
		emitter := &fakeEmitter{}
		p := newCountryUnderTest(details, emitter)

		msg := bus.Message{ID: "1-0", Body: []byte(peMessage)}
		require.NoError(t, p.HandleMessage(context.Background(), msg))
		require.NoError(t, p.HandleMessage(context.Background(), msg))

		// Inserts are not keyed by appointment id; redelivery is
		// duplicate-tolerant downstream, not deduplicated here.
		assert.Len(t, details.rows, 2)
		assert.Len(t, emitter.entries, 2)
	})
}
