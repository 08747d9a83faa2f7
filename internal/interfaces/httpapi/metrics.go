package httpapi

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"bcexplorer/internal/domain"
)

type rpcStats struct {
	calls   uint64
	errors  uint64
	seconds float64
}

// Metrics collects in-process counters. It is the observer handed to the
// provider client, the cache and the explorer.
type Metrics struct {
	mu            sync.RWMutex
	startTime     time.Time
	latestBlock   uint64
	rpc           map[string]*rpcStats
	cacheHits     uint64
	cacheMisses   uint64
	lookups       map[domain.LookupKind]uint64
	lookupErrs    uint64
	pageRenders   map[string]uint64
	apiRequests   map[string]uint64
	apiErrorCodes map[int]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:     time.Now(),
		rpc:           make(map[string]*rpcStats),
		lookups:       make(map[domain.LookupKind]uint64),
		pageRenders:   make(map[string]uint64),
		apiRequests:   make(map[string]uint64),
		apiErrorCodes: make(map[int]uint64),
	}
}

func (m *Metrics) OnLatestBlock(block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.latestBlock {
		m.latestBlock = block
	}
}

func (m *Metrics) OnRPCCall(method string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.rpc[method]
	if !ok {
		stats = &rpcStats{}
		m.rpc[method] = stats
	}
	stats.calls++
	stats.seconds += duration.Seconds()
	if err != nil && !isNotFound(err) {
		stats.errors++
	}
}

func (m *Metrics) OnCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *Metrics) OnLookupRecorded(kind domain.LookupKind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lookupErrs++
		return
	}
	m.lookups[kind]++
}

func (m *Metrics) OnPageRender(view string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageRenders[view]++
}

func (m *Metrics) OnAPIRequest(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiRequests[endpoint]++
	if status >= 400 {
		m.apiErrorCodes[status]++
	}
}

type RPCSnapshot struct {
	Calls   uint64
	Errors  uint64
	Seconds float64
}

type Snapshot struct {
	StartTime     time.Time
	LatestBlock   uint64
	RPC           map[string]RPCSnapshot
	CacheHits     uint64
	CacheMisses   uint64
	Lookups       map[domain.LookupKind]uint64
	LookupErrors  uint64
	PageRenders   map[string]uint64
	APIRequests   map[string]uint64
	APIErrorCodes map[int]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rpc := make(map[string]RPCSnapshot, len(m.rpc))
	for method, stats := range m.rpc {
		rpc[method] = RPCSnapshot{Calls: stats.calls, Errors: stats.errors, Seconds: stats.seconds}
	}
	return Snapshot{
		StartTime:     m.startTime,
		LatestBlock:   m.latestBlock,
		RPC:           rpc,
		CacheHits:     m.cacheHits,
		CacheMisses:   m.cacheMisses,
		Lookups:       copyCounts(m.lookups),
		LookupErrors:  m.lookupErrs,
		PageRenders:   copyCounts(m.pageRenders),
		APIRequests:   copyCounts(m.apiRequests),
		APIErrorCodes: copyCounts(m.apiErrorCodes),
	}
}

func copyCounts[K comparable](source map[K]uint64) map[K]uint64 {
	clone := make(map[K]uint64, len(source))
	for key, value := range source {
		clone[key] = value
	}
	return clone
}

func sortedKeys[K ~string](source map[K]uint64) []K {
	keys := make([]K, 0, len(source))
	for key := range source {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// WriteText writes the snapshot in the Prometheus text exposition format.
func (s Snapshot) WriteText(w io.Writer) {
	fmt.Fprintf(w, "bcexplorer_uptime_seconds %.0f\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(w, "bcexplorer_latest_block %d\n", s.LatestBlock)

	methods := make([]string, 0, len(s.RPC))
	for method := range s.RPC {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	for _, method := range methods {
		stats := s.RPC[method]
		fmt.Fprintf(w, "bcexplorer_rpc_calls_total{method=%q} %d\n", method, stats.Calls)
		fmt.Fprintf(w, "bcexplorer_rpc_errors_total{method=%q} %d\n", method, stats.Errors)
		fmt.Fprintf(w, "bcexplorer_rpc_seconds_total{method=%q} %.6f\n", method, stats.Seconds)
	}

	fmt.Fprintf(w, "bcexplorer_cache_hits_total %d\n", s.CacheHits)
	fmt.Fprintf(w, "bcexplorer_cache_misses_total %d\n", s.CacheMisses)
	for _, kind := range sortedKeys(s.Lookups) {
		fmt.Fprintf(w, "bcexplorer_lookups_recorded_total{kind=%q} %d\n", kind, s.Lookups[kind])
	}
	fmt.Fprintf(w, "bcexplorer_lookup_record_errors_total %d\n", s.LookupErrors)
	for _, view := range sortedKeys(s.PageRenders) {
		fmt.Fprintf(w, "bcexplorer_page_renders_total{view=%q} %d\n", view, s.PageRenders[view])
	}
	for _, endpoint := range sortedKeys(s.APIRequests) {
		fmt.Fprintf(w, "bcexplorer_api_requests_total{endpoint=%q} %d\n", endpoint, s.APIRequests[endpoint])
	}
	codes := make([]int, 0, len(s.APIErrorCodes))
	for code := range s.APIErrorCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "bcexplorer_api_errors_total{code=\"%d\"} %d\n", code, s.APIErrorCodes[code])
	}
}
