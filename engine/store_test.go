package engine_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netimp/engine"
	"github.com/samaelod/netimp/types"
)

func intp(v int) *int { return &v }

func TestNewStoreRejectsInvalid(t *testing.T) {
	_, err := engine.NewStore(types.ImpairmentConfig{SenderDropPercent: 101})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestStoreDefaults(t *testing.T) {
	cfg := types.ImpairmentConfig{SenderDropPercent: 5, ReceiverDropPercent: 6, DataDelayMs: 7, AckDelayMs: 8}
	s, err := engine.NewStore(cfg)
	require.NoError(t, err)

	assert.Equal(t, cfg, s.Get())
	assert.Equal(t, engine.DefaultStatus, s.Status())
}

func TestStoreSetPartial(t *testing.T) {
	s, err := engine.NewStore(types.ImpairmentConfig{SenderDropPercent: 5, AckDelayMs: 8})
	require.NoError(t, err)

	require.NoError(t, s.Set(types.Update{ReceiverDropPercent: intp(40), DataDelayMs: intp(250)}))

	assert.Equal(t, types.ImpairmentConfig{
		SenderDropPercent:   5,
		ReceiverDropPercent: 40,
		DataDelayMs:         250,
		AckDelayMs:          8,
	}, s.Get())
}

func TestStoreSetRejectsOutOfRange(t *testing.T) {
	initial := types.ImpairmentConfig{SenderDropPercent: 10, ReceiverDropPercent: 20, DataDelayMs: 30, AckDelayMs: 40}

	tests := []struct {
		name   string
		update types.Update
		fields []string
	}{
		{
			name:   "drop above 100",
			update: types.Update{SenderDropPercent: intp(101)},
			fields: []string{"sender drop percent"},
		},
		{
			name:   "negative drop",
			update: types.Update{ReceiverDropPercent: intp(-1)},
			fields: []string{"receiver drop percent"},
		},
		{
			name:   "negative delay",
			update: types.Update{AckDelayMs: intp(-5)},
			fields: []string{"ack delay upper bound (ms)"},
		},
		{
			name:   "delay beyond the ceiling",
			update: types.Update{DataDelayMs: intp(math.MaxInt)},
			fields: []string{"data delay upper bound (ms)"},
		},
		{
			name:   "ack delay one past the ceiling",
			update: types.Update{AckDelayMs: intp(engine.MaxDelayMs + 1)},
			fields: []string{"ack delay upper bound (ms)"},
		},
		{
			name:   "one bad field spoils the rest",
			update: types.Update{SenderDropPercent: intp(50), DataDelayMs: intp(-1)},
			fields: []string{"data delay upper bound (ms)"},
		},
		{
			name:   "every bad field is reported",
			update: types.Update{SenderDropPercent: intp(200), ReceiverDropPercent: intp(-3)},
			fields: []string{"sender drop percent", "receiver drop percent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := engine.NewStore(initial)
			require.NoError(t, err)

			err = s.Set(tt.update)
			require.Error(t, err)
			assert.ErrorIs(t, err, engine.ErrInvalidConfig)

			var verr *engine.ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tt.fields {
				assert.Contains(t, err.Error(), f)
			}

			assert.Equal(t, initial, s.Get(), "rejected update must not change anything")
		})
	}
}

func TestStoreBoundaries(t *testing.T) {
	s, err := engine.NewStore(types.ImpairmentConfig{})
	require.NoError(t, err)

	require.NoError(t, s.Set(types.Update{SenderDropPercent: intp(0), ReceiverDropPercent: intp(100)}))
	require.NoError(t, s.Set(types.Update{DataDelayMs: intp(0), AckDelayMs: intp(1 << 20)}))
	require.NoError(t, s.Set(types.Update{DataDelayMs: intp(engine.MaxDelayMs), AckDelayMs: intp(engine.MaxDelayMs)}))
}

func TestNewStoreRejectsHugeDelay(t *testing.T) {
	_, err := engine.NewStore(types.ImpairmentConfig{DataDelayMs: math.MaxInt})
	require.Error(t, err)

	var verr *engine.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, engine.MaxDelayMs, verr.Max)
	assert.Equal(t, math.MaxInt, verr.Value)
}

func TestStoreStatusLastWriterWins(t *testing.T) {
	s, err := engine.NewStore(types.ImpairmentConfig{})
	require.NoError(t, err)

	s.SetStatus("Sender packet dropped")
	s.SetStatus("Receiver packet delayed 12")
	assert.Equal(t, "Receiver packet delayed 12", s.Status())
}

func TestStoreWatch(t *testing.T) {
	s, err := engine.NewStore(types.ImpairmentConfig{})
	require.NoError(t, err)

	ch := s.Watch()

	require.Error(t, s.Set(types.Update{SenderDropPercent: intp(-1)}))
	select {
	case <-ch:
		t.Fatal("rejected update must not notify")
	default:
	}

	require.NoError(t, s.Set(types.Update{SenderDropPercent: intp(1)}))
	require.NoError(t, s.Set(types.Update{SenderDropPercent: intp(2)}))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after Set")
	}

	// coalesced into a single token
	select {
	case <-ch:
		t.Fatal("notifications were not coalesced")
	default:
	}
}

func TestStoreSnapshotsAreConsistent(t *testing.T) {
	a := types.ImpairmentConfig{SenderDropPercent: 10, ReceiverDropPercent: 10, DataDelayMs: 10, AckDelayMs: 10}
	b := types.ImpairmentConfig{SenderDropPercent: 20, ReceiverDropPercent: 20, DataDelayMs: 20, AckDelayMs: 20}

	s, err := engine.NewStore(a)
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			next := a
			if i%2 == 0 {
				next = b
			}
			if err := s.Set(types.FullUpdate(next)); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5000; i++ {
				cfg := s.Get()
				if cfg != a && cfg != b {
					t.Errorf("torn snapshot: %+v", cfg)
					return
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}
