package observability

import (
	"strconv"
	"sync"
	"time"
)

// PassStats carries the outcome of one reconciliation pass.
type PassStats struct {
	PassID             string        `json:"pass_id"`
	DryRun             bool          `json:"dry_run"`
	GroupsProcessed    int           `json:"groups_processed"`
	GroupsSkipped      int           `json:"groups_skipped"`
	UsersCreated       int           `json:"users_created"`
	UsersUpdated       int           `json:"users_updated"`
	UsersOffboarded    int           `json:"users_offboarded"`
	GroupsCreated      int           `json:"groups_created"`
	MembershipsAdded   int           `json:"memberships_added"`
	MembershipsRemoved int           `json:"memberships_removed"`
	EnrollmentChanges  int           `json:"enrollment_changes"`
	MembersSkipped     int           `json:"members_skipped"`
	UnmanagedIgnored   int           `json:"unmanaged_ignored"`
	Errors             int           `json:"errors"`
	Duration           time.Duration `json:"duration"`
}

// Snapshot is the aggregate view served by the metrics endpoint.
type Snapshot struct {
	PassesTotal     int64            `json:"passes_total"`
	PassesFailed    int64            `json:"passes_failed"`
	LastPassAt      *time.Time       `json:"last_pass_at,omitempty"`
	LastPass        *PassStats       `json:"last_pass,omitempty"`
	LastFailure     string           `json:"last_failure,omitempty"`
	RequestCounts   map[string]int64 `json:"request_counts"`
	RequestFailures map[string]int64 `json:"request_failures"`
}

// Metrics provides in-memory counters for passes and admin API traffic.
type Metrics struct {
	mu           sync.Mutex
	passesTotal  int64
	passesFailed int64
	lastPassAt   *time.Time
	lastPass     *PassStats
	lastFailure  string
	requestCount map[string]int64
	errorCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordPass records a completed reconciliation pass.
func (m *Metrics) RecordPass(stats PassStats) {
	if m == nil {
		return
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passesTotal++
	m.lastPassAt = &now
	m.lastPass = &stats
	m.lastFailure = ""
}

// RecordFailedPass records a pass that aborted before completing.
func (m *Metrics) RecordFailedPass(err error) {
	if m == nil {
		return
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passesTotal++
	m.passesFailed++
	m.lastPassAt = &now
	if err != nil {
		m.lastFailure = err.Error()
	}
}

// RecordRequest increments counters for admin API requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments admin API error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// GetSnapshot returns a copy of all counters.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		PassesTotal:     m.passesTotal,
		PassesFailed:    m.passesFailed,
		LastFailure:     m.lastFailure,
		RequestCounts:   make(map[string]int64, len(m.requestCount)),
		RequestFailures: make(map[string]int64, len(m.errorCount)),
	}
	if m.lastPassAt != nil {
		at := *m.lastPassAt
		snap.LastPassAt = &at
	}
	if m.lastPass != nil {
		stats := *m.lastPass
		snap.LastPass = &stats
	}
	for k, v := range m.requestCount {
		snap.RequestCounts[k] = v
	}
	for k, v := range m.errorCount {
		snap.RequestFailures[k] = v
	}
	return snap
}
