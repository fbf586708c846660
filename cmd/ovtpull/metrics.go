package main

import (
	"math"
	"sync/atomic"
)

// atomicMetrics is a minimal StreamMetrics sink built on sync/atomic
// counters, the same pattern the ingest stack uses for its own stats
// (single-writer-per-field, lock-free reads).
type atomicMetrics struct {
	bytesIn             atomic.Int64
	originRequestMSec   atomic.Uint64 // stored as math.Float64bits
	originResponseMSec  atomic.Uint64
}

func newAtomicMetrics() *atomicMetrics {
	return &atomicMetrics{}
}

func (m *atomicMetrics) IncreaseBytesIn(n int64) {
	m.bytesIn.Add(n)
}

func (m *atomicMetrics) SetOriginRequestTimeMSec(ms float64) {
	m.originRequestMSec.Store(math.Float64bits(ms))
}

func (m *atomicMetrics) SetOriginResponseTimeMSec(ms float64) {
	m.originResponseMSec.Store(math.Float64bits(ms))
}

func (m *atomicMetrics) snapshot() (bytesIn int64, requestMS, responseMS float64) {
	return m.bytesIn.Load(), math.Float64frombits(m.originRequestMSec.Load()), math.Float64frombits(m.originResponseMSec.Load())
}
