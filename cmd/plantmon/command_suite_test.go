package main

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Test peripheral addresses for consistent fake identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

const (
	plantService        = "0000ffe0-0000-1000-8000-00805f9b34fb"
	plantCharacteristic = "0000ffe1-0000-1000-8000-00805f9b34fb"
)

// CommandTestSuite swaps the radio transport for a scripted one.
// All cmd/plantmon test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Logger    *logrus.Logger
	Transport *scriptedTransport

	originalTransport func(*config.Config, *logrus.Logger) link.Transport
}

func (s *CommandTestSuite) SetupTest() {
	s.Logger = logrus.New()
	s.Logger.SetOutput(io.Discard)
	s.Transport = &scriptedTransport{}

	s.originalTransport = newTransport
	newTransport = func(*config.Config, *logrus.Logger) link.Transport {
		return s.Transport
	}
}

func (s *CommandTestSuite) TearDownTest() {
	newTransport = s.originalTransport
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	defer func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		cmd.SetArgs(nil)
	}()
	err := cmd.Execute()
	return buf.String(), err
}

// scriptedTransport advertises peripherals and hands out sessions that emit
// frames once subscribed.
type scriptedTransport struct {
	Peripherals []link.Peripheral
	ScanErr     error
	Frames      []string
}

func (t *scriptedTransport) Scan(ctx context.Context, filter link.ScanFilter, found func(link.Peripheral)) error {
	if t.ScanErr != nil {
		return t.ScanErr
	}
	for _, p := range t.Peripherals {
		if filter.Matches(p) {
			found(p)
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *scriptedTransport) Connect(_ context.Context, p link.Peripheral, _ func(error)) (link.Session, error) {
	return &scriptedSession{peripheral: p, frames: t.Frames, stop: make(chan struct{})}, nil
}

type scriptedSession struct {
	peripheral link.Peripheral
	frames     []string
	once       sync.Once
	stop       chan struct{}
}

func (s *scriptedSession) Peripheral() link.Peripheral { return s.peripheral }

func (s *scriptedSession) DiscoverServices(context.Context) (link.ServiceMap, error) {
	return link.ServiceMap{
		link.NormalizeUUID(plantService): {
			UUID: link.NormalizeUUID(plantService),
			Characteristics: map[string]link.CharacteristicInfo{
				link.NormalizeUUID(plantCharacteristic): {
					UUID:      link.NormalizeUUID(plantCharacteristic),
					CanNotify: true,
					HasCCCD:   true,
				},
			},
		},
	}, nil
}

func (s *scriptedSession) Subscribe(_ context.Context, _, _ string, handler func([]byte)) (link.Subscription, error) {
	go func() {
		for _, f := range s.frames {
			select {
			case <-s.stop:
				return
			case <-time.After(5 * time.Millisecond):
				handler([]byte(f))
			}
		}
	}()
	return link.Subscription{}, nil
}

func (s *scriptedSession) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// syncBuffer is a bytes.Buffer safe for a concurrent writer and reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
