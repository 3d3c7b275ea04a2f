package test_helpers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	redditcore "github.com/jamesprial/redditcore"
	"github.com/jamesprial/redditcore/internal"
)

// TestSession wraps a Session backed by a RedditMockServer, for tests that
// want a real request pipeline (auth, rate limiting, retries) running
// against a local httptest.Server instead of Reddit itself.
type TestSession struct {
	*redditcore.Session
	authorizer *redditcore.Authorizer
	mockServer *RedditMockServer
	config     MockClientConfig
	mu         sync.RWMutex
}

// NewTestSession creates a read-only-authenticated TestSession pointed at a
// fresh mock server.
func NewTestSession(config *MockClientConfig) *TestSession {
	if config == nil {
		defaultConfig := DefaultMockClientConfig()
		config = &defaultConfig
	}

	mockServer := NewRedditMockServer()
	config.BaseURL = mockServer.URL()

	requestor := internal.NewRequestor(&http.Client{Timeout: config.Timeout})
	authenticator, err := redditcore.NewTrustedAuthenticator(
		requestor, "test_client_id", "test_client_secret", config.UserAgent,
		redditcore.WithRedditURL(config.BaseURL),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build test authenticator: %v", err))
	}
	authorizer := redditcore.NewReadOnlyAuthorizer(authenticator)

	session := redditcore.NewSession(authorizer, requestor,
		redditcore.WithUserAgent(config.UserAgent),
		redditcore.WithOAuthURL(config.BaseURL),
		redditcore.WithSessionRedditURL(config.BaseURL),
	)

	return &TestSession{
		Session:    session,
		authorizer: authorizer,
		mockServer: mockServer,
		config:     *config,
	}
}

// MockServer returns the underlying mock server.
func (ts *TestSession) MockServer() *RedditMockServer {
	return ts.mockServer
}

// Authorizer returns the authorizer backing this session, for tests that
// assert directly on token/expiration state.
func (ts *TestSession) Authorizer() *redditcore.Authorizer {
	return ts.authorizer
}

// Close shuts down the mock server.
func (ts *TestSession) Close() {
	ts.mockServer.Close()
}

// Reset clears the mock server's request log and call counts.
func (ts *TestSession) Reset() {
	ts.mockServer.ClearLog()
	ts.mockServer.handler.mutex.Lock()
	ts.mockServer.handler.callCount = make(map[string]int)
	ts.mockServer.handler.mutex.Unlock()
}

// WaitForRequests waits for a specific number of requests.
func (ts *TestSession) WaitForRequests(count int, timeout time.Duration) error {
	return ts.mockServer.WaitForRequests(count, timeout)
}

// AssertRequestCount asserts request count for a path.
func (ts *TestSession) AssertRequestCount(path string, expectedCount int) error {
	return ts.mockServer.AssertRequestCount(path, expectedCount)
}

// GetRequestLog returns the request log.
func (ts *TestSession) GetRequestLog() []RequestEntry {
	return ts.mockServer.GetRequestLog()
}

// SetDelay sets response delay.
func (ts *TestSession) SetDelay(delay time.Duration) {
	ts.mockServer.SetDelay(delay)
}

// SetErrorRate sets error rate.
func (ts *TestSession) SetErrorRate(rate float64) {
	ts.mockServer.SetErrorRate(rate)
}

// SetupRateLimit configures the x-ratelimit-* headers the mock returns.
func (ts *TestSession) SetupRateLimit(remaining, used int, resetTime time.Time) {
	ts.mockServer.SetupRateLimit(remaining, used, resetTime)
}

// SetupError configures the mock's default response as an error.
func (ts *TestSession) SetupError(statusCode int, message string) {
	ts.mockServer.SetupError(statusCode, message)
}

// ConcurrentTestHelper runs the same workload across several independent
// TestSessions, for concurrency and singleflight-dedup tests.
type ConcurrentTestHelper struct {
	sessions []*TestSession
	mu       sync.RWMutex
}

// NewConcurrentTestHelper creates a helper for concurrent testing.
func NewConcurrentTestHelper(sessionCount int) *ConcurrentTestHelper {
	helper := &ConcurrentTestHelper{
		sessions: make([]*TestSession, sessionCount),
	}

	for i := 0; i < sessionCount; i++ {
		helper.sessions[i] = NewTestSession(nil)
	}

	return helper
}

// GetSession returns a session by index.
func (cth *ConcurrentTestHelper) GetSession(index int) *TestSession {
	cth.mu.RLock()
	defer cth.mu.RUnlock()

	if index < 0 || index >= len(cth.sessions) {
		return nil
	}

	return cth.sessions[index]
}

// GetAllSessions returns all sessions.
func (cth *ConcurrentTestHelper) GetAllSessions() []*TestSession {
	cth.mu.RLock()
	defer cth.mu.RUnlock()

	result := make([]*TestSession, len(cth.sessions))
	copy(result, cth.sessions)
	return result
}

// Close closes all sessions.
func (cth *ConcurrentTestHelper) Close() {
	cth.mu.Lock()
	defer cth.mu.Unlock()

	for _, session := range cth.sessions {
		session.Close()
	}
}

// Reset resets all sessions.
func (cth *ConcurrentTestHelper) Reset() {
	cth.mu.Lock()
	defer cth.mu.Unlock()

	for _, session := range cth.sessions {
		session.Reset()
	}
}

// RunConcurrentTest runs a test function concurrently across all sessions.
func (cth *ConcurrentTestHelper) RunConcurrentTest(testFunc func(*TestSession) error) []error {
	cth.mu.RLock()
	sessions := make([]*TestSession, len(cth.sessions))
	copy(sessions, cth.sessions)
	cth.mu.RUnlock()

	errs := make([]error, len(sessions))
	var wg sync.WaitGroup
	var errMu sync.Mutex

	for i, session := range sessions {
		wg.Add(1)
		go func(index int, ts *TestSession) {
			defer wg.Done()
			if err := testFunc(ts); err != nil {
				errMu.Lock()
				errs[index] = err
				errMu.Unlock()
			}
		}(i, session)
	}

	wg.Wait()
	return errs
}

// PerformanceMetrics tracks performance metrics for a load test run.
type PerformanceMetrics struct {
	RequestCount     int64
	TotalDuration    time.Duration
	AverageLatency   time.Duration
	MinLatency       time.Duration
	MaxLatency       time.Duration
	ErrorCount       int64
	BytesTransferred int64
	mu               sync.RWMutex
	latencies        []time.Duration
}

// PerformanceTestHelper helps with performance testing against one session.
type PerformanceTestHelper struct {
	session   *TestSession
	metrics   *PerformanceMetrics
	mu        sync.RWMutex
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceTestHelper creates a performance testing helper.
func NewPerformanceTestHelper() *PerformanceTestHelper {
	session := NewTestSession(nil)

	return &PerformanceTestHelper{
		session: session,
		metrics: &PerformanceMetrics{
			MinLatency: time.Hour,
			latencies:  make([]time.Duration, 0),
		},
	}
}

// Session returns the test session.
func (pth *PerformanceTestHelper) Session() *TestSession {
	return pth.session
}

// StartMeasurement starts performance measurement.
func (pth *PerformanceTestHelper) StartMeasurement() {
	pth.mu.Lock()
	defer pth.mu.Unlock()

	pth.startTime = time.Now()
	pth.metrics.mu.Lock()
	pth.metrics.latencies = pth.metrics.latencies[:0]
	pth.metrics.mu.Unlock()
}

// StopMeasurement stops performance measurement.
func (pth *PerformanceTestHelper) StopMeasurement() {
	pth.mu.Lock()
	defer pth.mu.Unlock()

	pth.endTime = time.Now()
	pth.metrics.TotalDuration = pth.endTime.Sub(pth.startTime)

	pth.metrics.mu.Lock()
	if len(pth.metrics.latencies) > 0 {
		var total time.Duration
		for _, latency := range pth.metrics.latencies {
			total += latency
		}
		pth.metrics.AverageLatency = total / time.Duration(len(pth.metrics.latencies))
	}
	pth.metrics.mu.Unlock()
}

// RecordRequest records a request for performance metrics.
func (pth *PerformanceTestHelper) RecordRequest(latency time.Duration, bytes int64, err error) {
	pth.metrics.mu.Lock()
	defer pth.metrics.mu.Unlock()

	pth.metrics.RequestCount++
	pth.metrics.BytesTransferred += bytes

	if err != nil {
		pth.metrics.ErrorCount++
	}

	pth.metrics.latencies = append(pth.metrics.latencies, latency)

	if latency < pth.metrics.MinLatency {
		pth.metrics.MinLatency = latency
	}
	if latency > pth.metrics.MaxLatency {
		pth.metrics.MaxLatency = latency
	}
}

// GetMetrics returns a pointer to the current performance metrics.
func (pth *PerformanceTestHelper) GetMetrics() *PerformanceMetrics {
	return pth.metrics
}

// Reset resets the performance metrics.
func (pth *PerformanceTestHelper) Reset() {
	pth.mu.Lock()
	defer pth.mu.Unlock()

	pth.metrics = &PerformanceMetrics{
		MinLatency: time.Hour,
		latencies:  make([]time.Duration, 0),
	}
}

// Close closes the performance test helper.
func (pth *PerformanceTestHelper) Close() {
	pth.session.Close()
}

// RunLoadTest runs a load test with the specified concurrency and duration.
func (pth *PerformanceTestHelper) RunLoadTest(ctx context.Context, concurrency int, duration time.Duration, testFunc func(*TestSession) error) (*PerformanceMetrics, error) {
	pth.Reset()
	pth.StartMeasurement()
	defer pth.StopMeasurement()

	concurrentHelper := NewConcurrentTestHelper(concurrency)
	defer concurrentHelper.Close()

	workChan := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerIndex int) {
			defer wg.Done()
			session := concurrentHelper.GetSession(workerIndex)

			for {
				select {
				case <-ctx.Done():
					return
				case <-workChan:
					start := time.Now()
					err := testFunc(session)
					latency := time.Since(start)

					pth.RecordRequest(latency, 0, err)
				}
			}
		}(i)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	endTime := time.Now().Add(duration)
	for time.Now().Before(endTime) {
		select {
		case <-ctx.Done():
			return pth.GetMetrics(), ctx.Err()
		case <-ticker.C:
			select {
			case workChan <- struct{}{}:
			default:
			}
		}
	}

	close(workChan)
	wg.Wait()

	return pth.GetMetrics(), nil
}

// AuthTestHelper helps with authentication-flow testing.
type AuthTestHelper struct {
	session *TestSession
}

// NewAuthTestHelper creates an authentication testing helper.
func NewAuthTestHelper() *AuthTestHelper {
	return &AuthTestHelper{
		session: NewTestSession(nil),
	}
}

// Session returns the test session.
func (ath *AuthTestHelper) Session() *TestSession {
	return ath.session
}

// SetupValidAuth configures the mock server for a healthy token exchange.
func (ath *AuthTestHelper) SetupValidAuth() {
	ath.session.SetupRateLimit(100, 1, time.Now().Add(time.Hour))
}

// SetupExpiredToken configures the mock server to reject the token exchange.
func (ath *AuthTestHelper) SetupExpiredToken() {
	ath.session.SetupError(401, "invalid_grant: The provided authorization grant is invalid, expired, revoked, does not match the redirection URI used in the authorization request, or was issued to another client.")
}

// SetupRateLimited configures the mock server for a rate-limited scenario.
func (ath *AuthTestHelper) SetupRateLimited() {
	ath.session.SetupError(429, "Too Many Requests")
	ath.session.SetupRateLimit(0, 60, time.Now().Add(time.Minute))
}

// Close closes the auth test helper.
func (ath *AuthTestHelper) Close() {
	ath.session.Close()
}

// AssertNoError asserts that an error is nil.
func AssertNoError(err error) error {
	if err != nil {
		return fmt.Errorf("expected no error, got: %v", err)
	}
	return nil
}

// AssertError asserts that an error is not nil.
func AssertError(err error) error {
	if err == nil {
		return fmt.Errorf("expected error, got nil")
	}
	return nil
}

// AssertErrorContains asserts that an error's message contains expected.
func AssertErrorContains(err error, expected string) error {
	if err == nil {
		return fmt.Errorf("expected error containing '%s', got nil", expected)
	}
	if !contains(err.Error(), expected) {
		return fmt.Errorf("expected error containing '%s', got '%s'", expected, err.Error())
	}
	return nil
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && indexOf(s, substr) >= 0))
}

func indexOf(s, substr string) int {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
