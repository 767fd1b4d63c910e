package server

import (
	"sync"
	"time"
)

// LivenessState is the heartbeat state of one connection.
type LivenessState int

const (
	// Fresh means the last probe was answered (or none was sent yet).
	Fresh LivenessState = iota
	// AwaitingPong means a ping is outstanding and its timeout is armed.
	AwaitingPong
	// Dead is terminal: the connection missed a pong or was stopped.
	Dead
)

func (s LivenessState) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case AwaitingPong:
		return "awaiting-pong"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// livenessMonitor drives the Fresh -> AwaitingPong -> Fresh|Dead cycle for a
// single connection. All transitions happen under mu, and each probe carries
// a sequence number, so a pong racing its timeout resolves to exactly one
// outcome.
type livenessMonitor struct {
	mu         sync.Mutex
	state      LivenessState
	seq        uint64
	timer      *time.Timer
	lastPongAt time.Time
	evicted    bool

	interval time.Duration
	timeout  time.Duration
	probe    func() error
	onDead   func()
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

func newLivenessMonitor(hb HeartbeatConfig, probe func() error, onDead func()) *livenessMonitor {
	return &livenessMonitor{
		state:      Fresh,
		lastPongAt: time.Now(),
		interval:   hb.PingInterval,
		timeout:    hb.PongTimeout,
		probe:      probe,
		onDead:     onDead,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
}

// run ticks until the monitor is stopped or the connection is declared dead.
func (m *livenessMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick sends a probe when the connection is Fresh.
func (m *livenessMonitor) tick() {
	m.mu.Lock()
	if m.state != Fresh {
		m.mu.Unlock()
		return
	}
	m.state = AwaitingPong
	m.seq++
	seq := m.seq
	m.timer = time.AfterFunc(m.timeout, func() { m.expire(seq) })
	m.mu.Unlock()

	if m.probe == nil {
		return
	}
	if err := m.probe(); err != nil {
		// An unwritable transport cannot answer either.
		m.expire(seq)
	}
}

// pong records a pong. It only moves AwaitingPong back to Fresh; a pong
// arriving after the connection died changes nothing.
func (m *livenessMonitor) pong() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Dead {
		return
	}
	m.lastPongAt = m.now()
	if m.state == AwaitingPong {
		m.state = Fresh
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
	}
}

func (m *livenessMonitor) expire(seq uint64) {
	m.mu.Lock()
	if m.state != AwaitingPong || seq != m.seq {
		m.mu.Unlock()
		return
	}
	m.state = Dead
	m.evicted = true
	m.timer = nil
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stop) })
	if m.onDead != nil {
		m.onDead()
	}
}

// halt cancels any pending timeout and moves the monitor to Dead without
// invoking onDead. Used when the connection closes for another reason.
func (m *livenessMonitor) halt() {
	m.mu.Lock()
	m.state = Dead
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *livenessMonitor) snapshot() (LivenessState, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastPongAt, m.evicted
}
