package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/groutine"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/ringchan"
)

var (
	// ErrBusy is returned by Start while an attempt is active.
	ErrBusy = errors.New("connection attempt already in progress")

	// ErrClosed is returned once the machine has been closed.
	ErrClosed = errors.New("connection machine closed")
)

// FrameHandler consumes notification payloads. It is called from the machine
// loop, one frame at a time, and must not block on I/O.
type FrameHandler interface {
	HandleFrame(payload []byte)
}

// StateNotifier receives every state transition, on the machine loop.
// Implementations must not call Start or Stop. *fanout.Hub implements it.
type StateNotifier interface {
	PublishState(st link.ConnectionState)
}

// Option configures a Machine.
type Option func(*Machine)

// WithCapabilities sets the permission layer queried before any radio use.
// Without it every Start fails with a permission error.
func WithCapabilities(c link.CapabilityChecker) Option {
	return func(m *Machine) { m.caps = c }
}

// WithStateNotifier sets the target for state transitions.
func WithStateNotifier(n StateNotifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// Machine drives one peripheral through scan, connect, negotiate, subscribe
// and streaming.
//
// Transport callbacks and worker results are funneled into a single loop
// goroutine as Events. The loop is the only writer of the machine state, and
// the only caller of the FrameHandler. Each Start opens a new attempt; events
// tagged with an older attempt, or arriving in a state that no longer expects
// them, are dropped, and any session they carry is closed.
type Machine struct {
	transport link.Transport
	caps      link.CapabilityChecker
	handler   FrameHandler
	notifier  StateNotifier
	opts      Options
	logger    *logrus.Logger

	events        chan Event
	notifications *ringchan.RingChannel[CharacteristicChanged]

	mu      sync.RWMutex
	state   link.ConnectionState
	changed chan struct{}

	// loop-owned
	attempt       uint64
	attemptCtx    context.Context
	cancelAttempt context.CancelFunc
	timer         *time.Timer
	session       *session
	pendingReason error

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	workers   groutine.Group
	closeOnce sync.Once
}

// New creates a machine and starts its loop. Call Close to release it.
func New(t link.Transport, handler FrameHandler, opts Options, options ...Option) (*Machine, error) {
	if t == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	m := &Machine{
		transport:     t,
		handler:       handler,
		opts:          opts,
		logger:        logrus.New(),
		events:        make(chan Event, 32),
		notifications: ringchan.New[CharacteristicChanged](max(opts.FrameBuffer, 1)),
		state:         link.ConnectionState{State: link.Idle},
		changed:       make(chan struct{}),
		cancelAttempt: func() {},
		done:          make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	groutine.Go(m.ctx, "plantmon-connection-loop", m.run)
	return m, nil
}

// HasRequiredCapability reports whether scan and connect are granted.
func (m *Machine) HasRequiredCapability() bool {
	return link.CheckCapabilities(m.caps, link.RequiredCapabilities...) == nil
}

// State returns the current connection state.
func (m *Machine) State() link.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// DroppedFrames returns how many notifications were discarded because the
// loop fell behind.
func (m *Machine) DroppedFrames() uint64 {
	return m.notifications.Dropped()
}

// Start begins a new attempt from Idle or Failed.
//
// The capability grant is checked first; when it is missing Start returns a
// *link.PermissionError, the state stays where it was and the transport is
// never touched. Failures after this point surface as state transitions.
func (m *Machine) Start(ctx context.Context) error {
	if err := link.CheckCapabilities(m.caps, link.RequiredCapabilities...); err != nil {
		m.logger.WithError(err).Warn("Refusing to start without required capability")
		return err
	}
	return m.request(ctx, request{})
}

// Stop ends the current attempt and waits until the machine is Idle.
// Stopping a Failed machine returns it to Idle.
func (m *Machine) Stop(ctx context.Context) error {
	if err := m.request(ctx, request{stop: true}); err != nil {
		return err
	}
	_, err := m.Await(ctx, link.Idle)
	return err
}

// Await blocks until the machine reaches one of states, or ctx is done.
// Transitions that come and go between wakeups may be missed; await states
// the machine rests in.
func (m *Machine) Await(ctx context.Context, states ...link.State) (link.ConnectionState, error) {
	for {
		m.mu.RLock()
		st, changed := m.state, m.changed
		m.mu.RUnlock()

		if slices.Contains(states, st.State) {
			return st, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		case <-m.done:
			return m.State(), ErrClosed
		}
	}
}

// Close stops the loop, tears down any session and waits for all workers.
// It is idempotent.
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
		m.workers.Wait()
	})
	return nil
}

func (m *Machine) request(ctx context.Context, r request) error {
	r.reply = make(chan error, 1)
	select {
	case m.events <- r:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
	select {
	case err := <-r.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// post hands an event to the loop. It returns false once the loop is gone.
func (m *Machine) post(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Machine) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case ev := <-m.events:
			m.handle(ev)
		case ev := <-m.notifications.C():
			m.handleNotification(ev)
		}
	}
}

func (m *Machine) handle(ev Event) {
	if r, ok := ev.(request); ok {
		m.handleRequest(r)
		return
	}

	if ev.attemptID() != m.attempt {
		m.logger.WithFields(logrus.Fields{
			"event":   fmt.Sprintf("%T", ev),
			"attempt": ev.attemptID(),
			"current": m.attempt,
		}).Debug("Ignoring event from superseded attempt")
		if cc, ok := ev.(ConnectionChanged); ok && cc.Session != nil {
			m.closeLate(cc.Session)
		}
		return
	}

	switch e := ev.(type) {
	case DeviceFound:
		m.onDeviceFound(e)
	case scanFinished:
		m.onScanFinished(e)
	case ConnectionChanged:
		m.onConnectionChanged(e)
	case ServicesDiscovered:
		m.onServicesDiscovered(e)
	case DescriptorWritten:
		m.onDescriptorWritten(e)
	case attemptTimeout:
		m.onAttemptTimeout()
	case teardownDone:
		if m.state.State == link.Disconnecting {
			reason := m.pendingReason
			m.pendingReason = nil
			m.setState(link.Idle, reason)
		}
	}
}

func (m *Machine) handleRequest(r request) {
	if r.stop {
		m.stop(nil)
		r.reply <- nil
		return
	}

	switch m.state.State {
	case link.Idle, link.Failed:
		m.begin()
		r.reply <- nil
	default:
		r.reply <- ErrBusy
	}
}

func (m *Machine) begin() {
	m.attempt++
	id := m.attempt
	ctx, cancel := context.WithCancel(m.ctx)
	m.attemptCtx, m.cancelAttempt = ctx, cancel
	m.setState(link.Scanning, nil)

	filter := m.opts.Filter()
	m.logger.WithFields(logrus.Fields{
		"attempt": id,
		"filter":  filter.String(),
		"timeout": m.opts.ScanTimeout,
	}).Info("Scanning for peripheral...")

	m.workers.Go(ctx, "plantmon-scan", func(ctx context.Context) {
		var (
			match   link.Peripheral
			matched bool
		)
		for p, err := range link.Discover(ctx, m.transport, filter, m.opts.ScanTimeout) {
			if err != nil {
				m.post(scanFinished{attempt: id, err: err})
				return
			}
			if filter.Matches(p) {
				match, matched = p, true
				break
			}
		}
		// the scan has returned by now; the radio is free for the connect
		if matched {
			m.post(DeviceFound{Attempt: id, Peripheral: match})
			return
		}
		m.post(scanFinished{attempt: id})
	})
}

func (m *Machine) onDeviceFound(e DeviceFound) {
	if m.state.State != link.Scanning {
		return
	}

	id := m.attempt
	p := e.Peripheral
	m.logger.WithFields(logrus.Fields{
		"address": p.Address,
		"name":    p.Name,
		"rssi":    p.RSSI,
	}).Info("Peripheral found, connecting...")

	m.setState(link.Connecting, nil)
	m.armTimer(id)

	ctx := m.attemptContext()
	m.workers.Go(ctx, "plantmon-connect", func(ctx context.Context) {
		sess, err := m.transport.Connect(ctx, p, func(err error) {
			m.post(ConnectionChanged{Attempt: id, Err: err})
		})
		if err == nil && sess == nil {
			err = link.ErrNotConnected
		}
		if err != nil {
			m.post(ConnectionChanged{Attempt: id, Err: err})
			return
		}
		if !m.post(ConnectionChanged{Attempt: id, Connected: true, Session: sess}) {
			_ = sess.Close()
		}
	})
}

func (m *Machine) onScanFinished(e scanFinished) {
	if m.state.State != link.Scanning {
		return
	}
	if e.err != nil {
		m.fail(transportError("scan", e.err))
		return
	}

	m.cancelAttempt()
	m.logger.WithField("timeout", m.opts.ScanTimeout).Info("Scan finished without a matching peripheral")
	m.setState(link.Idle, link.ErrTimeout)
}

func (m *Machine) onConnectionChanged(e ConnectionChanged) {
	state := m.state.State
	switch {
	case e.Connected && state == link.Connecting:
		m.session = newSession(e.Session)
		m.setState(link.Negotiating, nil)
		m.discover()

	case e.Connected:
		m.closeLate(e.Session)

	case state == link.Connecting:
		m.fail(transportError("connect", e.Err))

	case state == link.Negotiating || state == link.Subscribing:
		m.fail(transportError("disconnect", linkLoss(e.Err)))

	case state == link.Streaming:
		err := transportError("disconnect", linkLoss(e.Err))
		m.logger.WithError(err).Warn("Link lost while streaming")
		m.stop(err)
	}
}

func (m *Machine) discover() {
	id, sess := m.attempt, m.session
	m.workers.Go(m.attemptContext(), "plantmon-discover", func(ctx context.Context) {
		services, err := sess.DiscoverServices(ctx)
		m.post(ServicesDiscovered{Attempt: id, Services: services, Err: err})
	})
}

func (m *Machine) onServicesDiscovered(e ServicesDiscovered) {
	if m.state.State != link.Negotiating {
		return
	}
	if e.Err != nil {
		m.fail(transportError("discover", e.Err))
		return
	}

	chr, err := e.Services.Require(m.opts.ServiceUUID, m.opts.CharacteristicUUID)
	if err != nil {
		m.fail(err)
		return
	}
	if !chr.CanNotify {
		m.fail(fmt.Errorf("%w: characteristic %s does not support notifications",
			link.ErrProtocolMismatch, m.opts.CharacteristicUUID))
		return
	}

	m.logger.WithFields(logrus.Fields{
		"services": len(e.Services),
		"cccd":     chr.HasCCCD,
	}).Debug("Expected service and characteristic present")

	m.setState(link.Subscribing, nil)

	id, sess := m.attempt, m.session
	service, characteristic := m.opts.ServiceUUID, m.opts.CharacteristicUUID
	m.workers.Go(m.attemptContext(), "plantmon-subscribe", func(ctx context.Context) {
		sub, err := sess.Subscribe(ctx, service, characteristic, func(payload []byte) {
			// the radio stack may reuse its buffer
			if m.notifications.Send(CharacteristicChanged{Attempt: id, Value: bytes.Clone(payload)}) {
				m.logger.Debug("Notification queue full, dropped oldest frame")
			}
		})
		m.post(DescriptorWritten{Attempt: id, Subscription: sub, Err: err})
	})
}

func (m *Machine) onDescriptorWritten(e DescriptorWritten) {
	if m.state.State != link.Subscribing {
		return
	}

	switch {
	case errors.Is(e.Err, link.ErrDescriptorAbsent) || (e.Err == nil && e.Subscription.Degraded):
		m.stopTimer()
		m.logger.WithField("characteristic", m.opts.CharacteristicUUID).
			Warn("Notification descriptor absent, streaming in degraded mode")
		m.setState(link.Streaming, link.ErrDescriptorAbsent)
	case e.Err != nil:
		m.fail(transportError("subscribe", e.Err))
	default:
		m.stopTimer()
		m.setState(link.Streaming, nil)
	}
}

func (m *Machine) handleNotification(e CharacteristicChanged) {
	if e.Attempt != m.attempt {
		return
	}
	switch m.state.State {
	case link.Subscribing, link.Streaming:
	default:
		return
	}
	if m.handler != nil {
		m.handler.HandleFrame(e.Value)
	}
}

func (m *Machine) onAttemptTimeout() {
	switch m.state.State {
	case link.Connecting, link.Negotiating, link.Subscribing:
		m.fail(fmt.Errorf("%s: %w after %s", m.state.State, link.ErrTimeout, m.opts.ConnectTimeout))
	}
}

// fail ends the attempt in Failed and closes its session once.
func (m *Machine) fail(err error) {
	m.stopTimer()
	m.cancelAttempt()
	m.releaseSession()

	m.logger.WithFields(logrus.Fields{
		"attempt": m.attempt,
		"kind":    link.Classify(err),
		"error":   err,
	}).Error("Connection attempt failed")
	m.setState(link.Failed, err)
}

// stop ends the attempt through Disconnecting. reason is kept on the Idle
// state that follows.
func (m *Machine) stop(reason error) {
	switch m.state.State {
	case link.Idle, link.Disconnecting:
		return
	case link.Failed:
		m.setState(link.Idle, nil)
		return
	}

	m.stopTimer()
	m.cancelAttempt()

	if m.session == nil {
		m.setState(link.Idle, reason)
		return
	}

	sess, id := m.session, m.attempt
	m.session = nil
	m.pendingReason = reason
	m.setState(link.Disconnecting, nil)
	m.workers.Go(m.ctx, "plantmon-teardown", func(ctx context.Context) {
		if err := sess.Close(); err != nil {
			m.logger.WithError(err).Warn("Session closed with errors")
		}
		m.post(teardownDone{attempt: id})
	})
}

func (m *Machine) releaseSession() {
	if m.session == nil {
		return
	}
	sess := m.session
	m.session = nil
	m.workers.Go(m.ctx, "plantmon-teardown", func(ctx context.Context) {
		if err := sess.Close(); err != nil {
			m.logger.WithError(err).Warn("Session closed with errors")
		}
	})
}

func (m *Machine) closeLate(s link.Session) {
	m.logger.Debug("Closing session that arrived after its attempt ended")
	m.workers.Go(m.ctx, "plantmon-teardown", func(ctx context.Context) {
		_ = s.Close()
	})
}

func (m *Machine) shutdown() {
	m.stopTimer()
	m.cancelAttempt()
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			m.logger.WithError(err).Warn("Session closed with errors")
		}
		m.session = nil
	}
	m.notifications.Close()
	if m.state.State != link.Idle {
		m.setState(link.Idle, nil)
	}
}

func (m *Machine) armTimer(id uint64) {
	m.stopTimer()
	if m.opts.ConnectTimeout <= 0 {
		return
	}
	m.timer = time.AfterFunc(m.opts.ConnectTimeout, func() {
		m.post(attemptTimeout{attempt: id})
	})
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) attemptContext() context.Context {
	if m.attemptCtx == nil {
		return m.ctx
	}
	return m.attemptCtx
}

func (m *Machine) setState(s link.State, reason error) {
	st := link.ConnectionState{State: s, Reason: reason}

	m.mu.Lock()
	prev := m.state
	m.state = st
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"from":    prev.State,
		"to":      st,
		"attempt": m.attempt,
	}).Info("Connection state changed")

	if m.notifier != nil {
		m.notifier.PublishState(st)
	}
}

func transportError(op string, err error) error {
	var te *link.TransportError
	switch {
	case err == nil:
		return &link.TransportError{Op: op, Err: link.ErrNotConnected}
	case errors.As(err, &te),
		errors.Is(err, link.ErrPermissionDenied),
		errors.Is(err, link.ErrProtocolMismatch),
		errors.Is(err, link.ErrTimeout):
		return err
	default:
		return &link.TransportError{Op: op, Err: err}
	}
}

func linkLoss(err error) error {
	if err == nil {
		return link.ErrNotConnected
	}
	return err
}
