package pipeline

import (
	"io"
	"slices"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/fanout"
	"github.com/srg/plantmon/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type rejectRecorder struct {
	payloads []string
	errs     []error
}

func (r *rejectRecorder) OnFrameRejected(payload []byte, err error) {
	r.payloads = append(r.payloads, string(payload))
	r.errs = append(r.errs, err)
}

type PipelineTestSuite struct {
	suite.Suite
	clock   time.Time
	rejects *rejectRecorder
	p       *Pipeline
}

func (suite *PipelineTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	suite.clock = time.UnixMilli(1_700_000_000_000)
	suite.rejects = &rejectRecorder{}

	p, err := New(Options{HistoryCapacity: 5, AlertLogCapacity: 3},
		WithLogger(logger),
		WithClock(func() time.Time { return suite.clock }),
		WithRejectObserver(suite.rejects),
	)
	suite.Require().NoError(err)
	suite.p = p
}

func (suite *PipelineTestSuite) tick(d time.Duration) {
	suite.clock = suite.clock.Add(d)
}

func (suite *PipelineTestSuite) TestValidFrameBecomesSample() {
	var got []sensor.Sample
	suite.p.Subscribe(fanout.Funcs{Sample: func(s sensor.Sample) { got = append(got, s) }})

	suite.p.HandleFrame([]byte("30,25.5,55"))

	expected := sensor.Sample{Timestamp: 1_700_000_000_000, VOC: 30, Temperature: 25.5, Humidity: 55}
	suite.Equal([]sensor.Sample{expected}, got)
	suite.Equal([]sensor.Sample{expected}, slices.Collect(suite.p.Store().All()))
	suite.Equal(uint64(1), suite.p.Accepted())
	suite.Zero(suite.p.Alerts().Len())
}

func (suite *PipelineTestSuite) TestMalformedFrameIsDropped() {
	// GOAL: Verify bad payloads never reach the store or observers
	//
	// TEST SCENARIO: malformed frames → counted, reported to reject observers, store unchanged → next good frame still flows

	var samples int
	suite.p.Subscribe(fanout.Funcs{Sample: func(sensor.Sample) { samples++ }})

	for _, payload := range []string{"30,25.5", "x,25.5,55", "", "NaN,1,2"} {
		suite.p.HandleFrame([]byte(payload))
	}

	suite.Zero(suite.p.Store().Len(), "malformed frames MUST NOT mutate the store")
	suite.Zero(samples)
	suite.Equal(uint64(4), suite.p.Rejected())
	suite.Equal([]string{"30,25.5", "x,25.5,55", "", "NaN,1,2"}, suite.rejects.payloads)
	for _, err := range suite.rejects.errs {
		suite.ErrorIs(err, sensor.ErrMalformedFrame)
	}

	suite.p.HandleFrame([]byte("1,2,50"))
	suite.Equal(1, suite.p.Store().Len(), "pipeline MUST continue after bad frames")
}

func (suite *PipelineTestSuite) TestAlertsReachLogAndObservers() {
	var observed []alert.Kind
	suite.p.Subscribe(fanout.Funcs{Alert: func(e alert.Event) { observed = append(observed, e.Kind) }})

	suite.p.HandleFrame([]byte("51,35.1,39.9"))

	suite.Equal([]alert.Kind{alert.VocSpike, alert.Overheat, alert.LowHumidity}, observed)
	logged := suite.p.Alerts().Snapshot()
	suite.Require().Len(logged, 3)
	suite.Equal("VOC Spike – 51 ppm", logged[0].Message)
	suite.Equal("Overheating – 35.1°C", logged[1].Message)
	suite.Equal("Low Humidity – 39%", logged[2].Message)
}

func (suite *PipelineTestSuite) TestAlertLogIsBounded() {
	for i := 0; i < 5; i++ {
		suite.tick(time.Second)
		suite.p.HandleFrame([]byte("60,20,50"))
	}

	logged := suite.p.Alerts().Snapshot()
	suite.Len(logged, 3)
	suite.Equal(suite.clock.UnixMilli(), logged[2].Timestamp, "newest alerts MUST be kept")
}

func (suite *PipelineTestSuite) TestTimestampsNeverGoBackwards() {
	suite.p.HandleFrame([]byte("1,20,50"))
	suite.tick(-time.Minute)
	suite.p.HandleFrame([]byte("2,20,50"))
	suite.tick(2 * time.Minute)
	suite.p.HandleFrame([]byte("3,20,50"))

	var ts []int64
	for s := range suite.p.Store().All() {
		ts = append(ts, s.Timestamp)
	}
	suite.Require().Len(ts, 3)
	suite.True(slices.IsSorted(ts), "timestamps MUST be non-decreasing: %v", ts)
	suite.Equal(ts[0], ts[1])
}

func (suite *PipelineTestSuite) TestHistoryCapacity() {
	for i := 0; i < 8; i++ {
		suite.tick(time.Second)
		suite.p.HandleFrame(sensor.EncodeFrame(sensor.Reading{VOC: float64(i), Temperature: 20, Humidity: 50}))
	}

	suite.Equal(5, suite.p.Store().Len())
	var vocs []float64
	for s := range suite.p.Store().All() {
		vocs = append(vocs, s.VOC)
	}
	suite.Equal([]float64{3, 4, 5, 6, 7}, vocs)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func TestNewDefaults(t *testing.T) {
	p, err := New(Options{})
	require.NoError(t, err)

	assert.Equal(t, 100, p.Store().Cap())
	assert.Equal(t, 100, p.Alerts().Cap())
	assert.Equal(t, 1, p.Hub().Len(), "alert log MUST be subscribed")
}

func TestNewRejectsBadCapacity(t *testing.T) {
	_, err := New(Options{HistoryCapacity: -1})
	assert.Error(t, err)
}
