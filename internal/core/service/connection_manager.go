package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/metrics"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second
)

var connectionStates = []string{
	string(domain.ConnectionDisconnected),
	string(domain.ConnectionConnecting),
	string(domain.ConnectionConnected),
	string(domain.ConnectionError),
}

// RetryTimer is the part of *time.Timer the manager needs.
type RetryTimer interface {
	Stop() bool
}

type ConnectionOption func(*ConnectionManager)

// WithAfterFunc replaces time.AfterFunc for scheduling retries.
func WithAfterFunc(fn func(time.Duration, func()) RetryTimer) ConnectionOption {
	return func(m *ConnectionManager) { m.afterFunc = fn }
}

// ConnectionManager tracks stream connectivity and schedules reconnection
// with exponential backoff, giving up after maxRetries consecutive failures.
// The delay has no upper cap; maxRetries bounds it.
type ConnectionManager struct {
	mu         sync.Mutex
	state      domain.ConnectionState
	retryCount int
	maxRetries int
	baseDelay  time.Duration
	nextDelay  time.Duration
	exhausted  bool
	lastErr    error
	updatedAt  time.Time
	pending    RetryTimer
	disposed   bool
	afterFunc  func(time.Duration, func()) RetryTimer
	listeners  []func(domain.ConnectionStatus)
	logger     zerolog.Logger
}

func NewConnectionManager(maxRetries int, baseDelay time.Duration, logger zerolog.Logger, opts ...ConnectionOption) *ConnectionManager {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	m := &ConnectionManager{
		state:      domain.ConnectionDisconnected,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		updatedAt:  time.Now(),
		afterFunc: func(d time.Duration, f func()) RetryTimer {
			return time.AfterFunc(d, f)
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers a listener called after every state transition.
func (m *ConnectionManager) OnChange(fn func(domain.ConnectionStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// BackoffDelay returns baseDelay * 2^(attempt-1).
func (m *ConnectionManager) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return m.baseDelay * time.Duration(uint64(1)<<uint(attempt-1))
}

func (m *ConnectionManager) MarkConnecting() {
	m.transition(func() bool {
		m.state = domain.ConnectionConnecting
		return true
	})
}

func (m *ConnectionManager) MarkConnected() {
	m.transition(func() bool {
		m.state = domain.ConnectionConnected
		m.retryCount = 0
		m.nextDelay = 0
		m.exhausted = false
		m.lastErr = nil
		return true
	})
}

// MarkDisconnected records a deliberate disconnect and drops any pending retry.
func (m *ConnectionManager) MarkDisconnected() {
	m.transition(func() bool {
		m.cancelPendingLocked()
		m.state = domain.ConnectionDisconnected
		m.nextDelay = 0
		return true
	})
}

// HandleError moves to the error state and schedules retry after the backoff
// delay. Once retryCount exceeds maxRetries the manager settles in a terminal
// disconnected state and schedules nothing; Reset is required to try again.
func (m *ConnectionManager) HandleError(err error, retry func()) bool {
	scheduled := false
	m.transition(func() bool {
		if m.disposed || m.exhausted {
			return false
		}
		m.cancelPendingLocked()
		m.lastErr = err
		m.state = domain.ConnectionError
		m.retryCount++

		if m.retryCount > m.maxRetries {
			m.state = domain.ConnectionDisconnected
			m.exhausted = true
			m.nextDelay = 0
			m.logger.Error().Err(err).Int("attempt", m.retryCount).Msg("reconnection attempts exhausted")
			return true
		}

		delay := m.BackoffDelay(m.retryCount)
		m.nextDelay = delay
		var t RetryTimer
		t = m.afterFunc(delay, func() {
			m.mu.Lock()
			if m.disposed || m.pending != t {
				m.mu.Unlock()
				return
			}
			m.pending = nil
			m.mu.Unlock()
			retry()
		})
		m.pending = t
		scheduled = true
		metrics.ReconnectAttempts.Inc()
		m.logger.Warn().Err(err).Int("attempt", m.retryCount).Dur("delay", delay).Msg("scheduling reconnection")
		return true
	})
	return scheduled
}

// Reset clears the retry budget and any pending retry.
func (m *ConnectionManager) Reset() {
	m.transition(func() bool {
		if m.disposed {
			return false
		}
		m.cancelPendingLocked()
		m.state = domain.ConnectionDisconnected
		m.retryCount = 0
		m.nextDelay = 0
		m.exhausted = false
		m.lastErr = nil
		return true
	})
}

// Dispose cancels any pending retry and stops reacting to errors. It is
// idempotent.
func (m *ConnectionManager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPendingLocked()
	m.disposed = true
}

func (m *ConnectionManager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == domain.ConnectionConnected
}

func (m *ConnectionManager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *ConnectionManager) statusLocked() domain.ConnectionStatus {
	status := domain.ConnectionStatus{
		State:          m.state,
		RetryCount:     m.retryCount,
		MaxRetries:     m.maxRetries,
		NextRetryDelay: m.nextDelay,
		Exhausted:      m.exhausted,
		UpdatedAt:      m.updatedAt,
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	return status
}

func (m *ConnectionManager) cancelPendingLocked() {
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}

// transition applies change under the lock and notifies listeners outside it.
func (m *ConnectionManager) transition(change func() bool) {
	m.mu.Lock()
	if !change() {
		m.mu.Unlock()
		return
	}
	m.updatedAt = time.Now()
	status := m.statusLocked()
	listeners := append([]func(domain.ConnectionStatus){}, m.listeners...)
	m.mu.Unlock()

	metrics.SetConnectionState(string(status.State), connectionStates...)
	for _, fn := range listeners {
		fn(status)
	}
}
