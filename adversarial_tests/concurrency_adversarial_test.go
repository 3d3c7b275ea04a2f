package adversarial_tests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jamesprial/redditcore/adversarial_tests/helpers"

	redditcore "github.com/jamesprial/redditcore"
	"github.com/jamesprial/redditcore/internal"
)

const testMaxConcurrent = 10

// boundedConcurrentRequests issues n requests against session, at most
// concurrency at a time, and reports the highest number of in-flight
// requests actually observed. The first non-nil error is returned.
func boundedConcurrentRequests(ctx context.Context, session *redditcore.Session, n, concurrency int) (peak int32, firstErr error) {
	sem := make(chan struct{}, concurrency)
	var current, peakVal int32
	var errOnce sync.Once
	var wg sync.WaitGroup

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			c := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peakVal)
				if c <= p || atomic.CompareAndSwapInt32(&peakVal, p, c) {
					break
				}
			}

			path := fmt.Sprintf("api/comments/post_%d", id)
			_, err := session.Request(ctx, http.MethodGet, path, redditcore.RequestParams{})
			atomic.AddInt32(&current, -1)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(i)
	}
	wg.Wait()

	return atomic.LoadInt32(&peakVal), firstErr
}

// createTestSession builds a read-only trusted Session pointed entirely at
// server: the token endpoint and every api path resolve to server.URL.
func createTestSession(t *testing.T, server *httptest.Server) *redditcore.Session {
	t.Helper()
	requestor := internal.NewRequestor(server.Client())
	authenticator, err := redditcore.NewTrustedAuthenticator(
		requestor, "test_client", "test_secret", "test/1.0",
		redditcore.WithRedditURL(server.URL),
	)
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}
	authorizer := redditcore.NewReadOnlyAuthorizer(authenticator)
	return redditcore.NewSession(authorizer, requestor,
		redditcore.WithUserAgent("test/1.0"),
		redditcore.WithOAuthURL(server.URL),
	)
}

// wrapWithAuth wraps an HTTP handler so the same test server answers both
// the OAuth token endpoint and ordinary API paths.
func wrapWithAuth(apiHandler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"access_token": "test_token", "token_type": "bearer", "expires_in": 3600, "scope": "*"}`))
			return
		}
		apiHandler(w, r)
	}
}

// TestConcurrentRequestSemaphoreEnforcement tests that a caller-managed
// semaphore actually bounds concurrency against a shared Session.
func TestConcurrentRequestSemaphoreEnforcement(t *testing.T) {
	var requestCount int32

	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		time.Sleep(50 * time.Millisecond)

		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	ctx := context.Background()
	peak, err := boundedConcurrentRequests(ctx, session, 100, testMaxConcurrent)
	if err != nil {
		t.Logf("boundedConcurrentRequests returned error: %v", err)
	}

	total := atomic.LoadInt32(&requestCount)
	t.Logf("Peak concurrent requests: %d", peak)
	t.Logf("Total requests made: %d", total)

	if peak > testMaxConcurrent {
		t.Errorf("Semaphore failed: peak concurrency %d exceeded limit %d", peak, testMaxConcurrent)
	}
}

// TestConcurrentRequestContextCancellation tests proper cleanup on context cancellation
func TestConcurrentRequestContextCancellation(t *testing.T) {
	requestsStarted := int32(0)
	requestsCompleted := int32(0)

	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestsStarted, 1)
		defer atomic.AddInt32(&requestsCompleted, 1)

		time.Sleep(2 * time.Second)

		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	goroutinesBefore := runtime.NumGoroutine()

	_, err := boundedConcurrentRequests(ctx, session, 50, testMaxConcurrent)

	if err == nil {
		t.Error("Expected context cancellation error, got nil")
	}

	t.Logf("Context cancellation error (expected): %v", err)
	t.Logf("Requests started: %d", atomic.LoadInt32(&requestsStarted))
	t.Logf("Requests completed: %d", atomic.LoadInt32(&requestsCompleted))

	time.Sleep(500 * time.Millisecond)
	runtime.GC()

	goroutinesAfter := runtime.NumGoroutine()

	leaked := goroutinesAfter - goroutinesBefore
	t.Logf("Goroutines before: %d, after: %d, leaked: %d", goroutinesBefore, goroutinesAfter, leaked)

	if leaked > 10 {
		t.Errorf("Possible goroutine leak: %d goroutines not cleaned up", leaked)
	}
}

// TestConcurrentRequestGoroutineLeakDetection tests for goroutine leaks
func TestConcurrentRequestGoroutineLeakDetection(t *testing.T) {
	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	snapshotBefore := helpers.TakeGoroutineSnapshot()

	for iteration := 0; iteration < 10; iteration++ {
		ctx := context.Background()
		_, err := boundedConcurrentRequests(ctx, session, 20, testMaxConcurrent)
		if err != nil {
			t.Logf("Iteration %d error: %v", iteration, err)
		}
	}

	finalCount, err := helpers.WaitForGoroutineCleanup(2*time.Second, snapshotBefore.Count, 5)

	if err != nil {
		t.Errorf("Goroutine leak detected: %v", err)
	} else {
		t.Logf("Goroutine cleanup successful. Initial: %d, Final: %d",
			snapshotBefore.Count, finalCount)
	}
}

// TestConcurrentRequestMemoryLeak tests for memory leaks
func TestConcurrentRequestMemoryLeak(t *testing.T) {
	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		response := `{"id": "test", "body": "` + string(make([]byte, 1000)) + `"}`

		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(response))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	memoryBefore := helpers.TakeMemorySnapshot()

	for iteration := 0; iteration < 100; iteration++ {
		ctx := context.Background()
		_, err := boundedConcurrentRequests(ctx, session, 10, testMaxConcurrent)
		if err != nil {
			t.Logf("Iteration %d error: %v", iteration, err)
		}
	}

	memoryAfter := helpers.TakeMemorySnapshot()
	err := helpers.DetectMemoryLeak(memoryBefore, memoryAfter, 10*1024*1024)

	if err != nil {
		t.Errorf("Memory leak detected: %v", err)
	} else {
		t.Logf("No memory leak detected. Before: %d bytes, After: %d bytes",
			memoryBefore.Alloc, memoryAfter.Alloc)
	}
}

// TestConcurrentRequestDeadlockDetection tests for potential deadlocks
func TestConcurrentRequestDeadlockDetection(t *testing.T) {
	hangProbability := 0.1
	requestNum := int32(0)

	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		num := atomic.AddInt32(&requestNum, 1)

		if float64(num)*hangProbability >= 1.0 {
			time.Sleep(10 * time.Second)
			atomic.StoreInt32(&requestNum, 0)
		}

		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	detector := helpers.NewDeadlockDetector(5 * time.Second)

	err := detector.Run(func() error {
		ctx := context.Background()
		_, err := boundedConcurrentRequests(ctx, session, 30, testMaxConcurrent)
		return err
	})

	if err != nil {
		t.Logf("Operation completed with error (may be timeout): %v", err)
	} else {
		t.Log("Operation completed without deadlock")
	}
}

// TestConcurrentSingleRequests tests many concurrent single-request calls
// sharing one Session, unbounded by a caller-side semaphore.
func TestConcurrentSingleRequests(t *testing.T) {
	requestCount := int32(0)

	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		time.Sleep(10 * time.Millisecond)

		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	numGoroutines := 100
	errs := make(chan error, numGoroutines)
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			ctx := context.Background()
			path := fmt.Sprintf("api/comments/post_%d", id)
			_, err := session.Request(ctx, http.MethodGet, path, redditcore.RequestParams{})

			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	errorCount := 0
	for err := range errs {
		errorCount++
		if errorCount <= 5 {
			t.Logf("Request error: %v", err)
		}
	}

	t.Logf("Total requests: %d, Errors: %d", atomic.LoadInt32(&requestCount), errorCount)
}

// TestSemaphoreStressTesting tests a caller-managed semaphore under extreme stress
func TestSemaphoreStressTesting(t *testing.T) {
	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)

		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	tester := helpers.NewSemaphoreStressTester(testMaxConcurrent, 200)

	peak, err := tester.Test(func(id int) error {
		ctx := context.Background()
		path := fmt.Sprintf("api/comments/post_%d", id)
		_, err := session.Request(ctx, http.MethodGet, path, redditcore.RequestParams{})
		return err
	})

	if err != nil {
		t.Errorf("Semaphore stress test failed: %v", err)
	}

	t.Logf("Semaphore stress test passed. Peak concurrency: %d (max: %d)", peak, testMaxConcurrent)
}

// TestRaceConditionInConcurrentRequests tests for race conditions across
// many callers each issuing a bounded batch of concurrent requests.
func TestRaceConditionInConcurrentRequests(t *testing.T) {
	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	numCallers := 50
	errs := make(chan error, numCallers)
	var wg sync.WaitGroup

	wg.Add(numCallers)
	for i := 0; i < numCallers; i++ {
		go func(callerID int) {
			defer wg.Done()

			ctx := context.Background()
			_, err := boundedConcurrentRequests(ctx, session, 10, testMaxConcurrent)
			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	errorCount := 0
	for err := range errs {
		errorCount++
		if errorCount <= 5 {
			t.Logf("Concurrent batch error: %v", err)
		}
	}

	if errorCount > 0 {
		t.Logf("Total errors: %d out of %d concurrent callers", errorCount, numCallers)
	}
}

// TestConcurrentExecutorWithRequests tests using ConcurrentExecutor for leak detection
func TestConcurrentExecutorWithRequests(t *testing.T) {
	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	executor := helpers.NewConcurrentExecutor(5, 5*1024*1024) // 5MB threshold

	err := executor.Execute(func() error {
		for i := 0; i < 50; i++ {
			ctx := context.Background()
			_, err := boundedConcurrentRequests(ctx, session, 10, testMaxConcurrent)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Concurrent execution with leak detection failed: %v", err)
	}
}

// TestContextPropagationInConcurrentRequests tests that context is properly propagated
func TestContextPropagationInConcurrentRequests(t *testing.T) {
	requestsReceived := int32(0)

	server := httptest.NewServer(wrapWithAuth(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestsReceived, 1)

		select {
		case <-r.Context().Done():
			t.Log("Server detected context cancellation")
			return
		default:
		}

		time.Sleep(100 * time.Millisecond)

		w.Header().Set("X-Ratelimit-Remaining", "60")
		w.Header().Set("X-Ratelimit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "test"}`))
	}))
	defer server.Close()

	session := createTestSession(t, server)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := boundedConcurrentRequests(ctx, session, 50, testMaxConcurrent)

	if err == nil {
		t.Error("Expected context error, got nil")
	} else {
		t.Logf("Context cancellation error (expected): %v", err)
	}

	t.Logf("Requests received by server: %d", atomic.LoadInt32(&requestsReceived))
}
