package link

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed advertisement list, then waits for ctx.
type scriptedTransport struct {
	adverts []Peripheral
	scanErr error
	scans   atomic.Int32
	active  atomic.Int32
}

func (s *scriptedTransport) Scan(ctx context.Context, filter ScanFilter, found func(Peripheral)) error {
	s.scans.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	for _, p := range s.adverts {
		if filter.Matches(p) {
			found(p)
		}
	}
	if s.scanErr != nil {
		return s.scanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedTransport) Connect(context.Context, Peripheral, func(error)) (Session, error) {
	return nil, ErrUnsupported
}

func TestDiscover(t *testing.T) {
	transport := &scriptedTransport{adverts: []Peripheral{
		{Address: "11:11", Name: "Thermometer"},
		{Address: "22:22", Name: "PlantSensor_01"},
		{Address: "33:33", Name: "PlantSensor_02"},
	}}
	filter := ScanFilter{NameContains: "plantsensor"}

	t.Run("yields matches until the timeout closes the scan", func(t *testing.T) {
		var got []string
		for p, err := range Discover(context.Background(), transport, filter, 50*time.Millisecond) {
			require.NoError(t, err)
			got = append(got, p.Address)
		}
		assert.Equal(t, []string{"22:22", "33:33"}, got)
	})

	t.Run("breaking out stops the scan", func(t *testing.T) {
		var first Peripheral
		for p := range Discover(context.Background(), transport, filter, time.Minute) {
			first = p
			break
		}
		assert.Equal(t, "PlantSensor_01", first.Name, "first observed match MUST win")
		assert.Eventually(t, func() bool { return transport.active.Load() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		before := transport.scans.Load()
		seq := Discover(context.Background(), transport, filter, 20*time.Millisecond)
		for range seq {
		}
		for range seq {
		}
		assert.Equal(t, before+2, transport.scans.Load(), "every range MUST start a new scan")
	})

	t.Run("scan failure is yielded", func(t *testing.T) {
		failing := &scriptedTransport{scanErr: &TransportError{Op: "scan", Err: errors.New("hci down")}}
		var lastErr error
		for _, err := range Discover(context.Background(), failing, filter, time.Second) {
			lastErr = err
		}
		var terr *TransportError
		assert.ErrorAs(t, lastErr, &terr)
	})
}
