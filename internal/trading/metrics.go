package trading

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks swap execution latency and outcomes.
type Metrics struct {
	samples   []int64 // milliseconds, ring buffer
	sampleIdx int
	mu        sync.Mutex

	totalTrades   atomic.Int64
	successTrades atomic.Int64
	failedTrades  atomic.Int64

	lastQuoteMs atomic.Int64
	lastSignMs  atomic.Int64
	lastSendMs  atomic.Int64
	lastTotalMs atomic.Int64
}

// NewMetrics creates a metrics tracker keeping the last 100 samples.
func NewMetrics() *Metrics {
	return &Metrics{
		samples: make([]int64, 100),
	}
}

// RecordTrade records one executed (or failed) swap with its timing
// breakdown.
func (m *Metrics) RecordTrade(success bool, timer *TradeTimer) {
	quoteMs, signMs, sendMs := timer.Breakdown()
	totalMs := timer.TotalMs()

	m.mu.Lock()
	m.samples[m.sampleIdx%len(m.samples)] = totalMs
	m.sampleIdx++
	m.mu.Unlock()

	m.totalTrades.Add(1)
	if success {
		m.successTrades.Add(1)
	} else {
		m.failedTrades.Add(1)
	}

	m.lastQuoteMs.Store(quoteMs)
	m.lastSignMs.Store(signMs)
	m.lastSendMs.Store(sendMs)
	m.lastTotalMs.Store(totalMs)
}

// P50 returns the median latency in milliseconds.
func (m *Metrics) P50() int64 { return m.percentile(50) }

// P95 returns the 95th percentile latency in milliseconds.
func (m *Metrics) P95() int64 { return m.percentile(95) }

// P99 returns the 99th percentile latency in milliseconds.
func (m *Metrics) P99() int64 { return m.percentile(99) }

func (m *Metrics) percentile(p int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.sampleIdx
	if count > len(m.samples) {
		count = len(m.samples)
	}
	if count == 0 {
		return 0
	}

	sorted := make([]int64, count)
	copy(sorted, m.samples[:count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (p * count) / 100
	if idx >= count {
		idx = count - 1
	}
	return sorted[idx]
}

// LastBreakdown returns the latest trade's per-phase latency.
func (m *Metrics) LastBreakdown() (quote, sign, send, total int64) {
	return m.lastQuoteMs.Load(),
		m.lastSignMs.Load(),
		m.lastSendMs.Load(),
		m.lastTotalMs.Load()
}

// Stats returns aggregate counters.
func (m *Metrics) Stats() (total, success, failed int64, successRate float64) {
	total = m.totalTrades.Load()
	success = m.successTrades.Load()
	failed = m.failedTrades.Load()
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}
	return
}

// TradeTimer times the phases of one swap: venue round trip, signing,
// submission.
type TradeTimer struct {
	start    time.Time
	quoteEnd time.Time
	signEnd  time.Time
	sendEnd  time.Time
}

// NewTradeTimer starts timing a trade.
func NewTradeTimer() *TradeTimer {
	return &TradeTimer{start: time.Now()}
}

// MarkQuoteDone marks the venue round trip complete.
func (t *TradeTimer) MarkQuoteDone() { t.quoteEnd = time.Now() }

// MarkSignDone marks signing complete.
func (t *TradeTimer) MarkSignDone() { t.signEnd = time.Now() }

// MarkSendDone marks submission complete.
func (t *TradeTimer) MarkSendDone() { t.sendEnd = time.Now() }

// Breakdown returns milliseconds spent in each phase.
func (t *TradeTimer) Breakdown() (quote, sign, send int64) {
	if !t.quoteEnd.IsZero() {
		quote = t.quoteEnd.Sub(t.start).Milliseconds()
	}
	if !t.signEnd.IsZero() {
		sign = t.signEnd.Sub(t.quoteEnd).Milliseconds()
	}
	if !t.sendEnd.IsZero() {
		send = t.sendEnd.Sub(t.signEnd).Milliseconds()
	}
	return
}

// TotalMs returns total elapsed time in milliseconds.
func (t *TradeTimer) TotalMs() int64 {
	return time.Since(t.start).Milliseconds()
}
