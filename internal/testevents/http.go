package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// marshalSubmission serializes one submission's event payload.
func marshalSubmission(sub *Submission) ([]byte, error) {
	data, err := json.Marshal(sub.Event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// submitSessions submits session lifecycles concurrently. Workers take
// whole sessions so events inside one session stay ordered; only
// distinct sessions race each other.
func submitSessions(ctx context.Context, config *Config, plans []SessionPlan, stats *Stats) error {
	log.Printf("submitting %d sessions with %d workers...", len(plans), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/v1/events"

	var (
		successful int64
		duplicate  int64
		conflict   int64
		failed     int64
		submitted  int64
	)

	planChan := make(chan *SessionPlan, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for plan := range planChan {
				for s := range plan.Submissions {
					select {
					case <-ctx.Done():
						return
					default:
					}

					result := submitSingleEvent(ctx, client, url, &plan.Submissions[s])
					atomic.AddInt64(&submitted, 1)
					switch result {
					case "success":
						atomic.AddInt64(&successful, 1)
					case "duplicate":
						atomic.AddInt64(&duplicate, 1)
					case "conflict":
						atomic.AddInt64(&conflict, 1)
					default:
						atomic.AddInt64(&failed, 1)
					}
				}

				if config.Verbose {
					log.Printf("session %s submitted (%d attempts)", plan.SessionID, len(plan.Submissions))
				}
			}
		}()
	}

	go func() {
		defer close(planChan)
		for i := range plans {
			select {
			case <-ctx.Done():
				return
			case planChan <- &plans[i]:
			}
		}
	}()

	wg.Wait()

	stats.EventsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.EventsSuccessful = int(atomic.LoadInt64(&successful))
	stats.EventsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.EventsConflict = int(atomic.LoadInt64(&conflict))
	stats.EventsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`event submission completed:
   Successful: %d
   Duplicate: %d
   Conflict: %d
   Failed: %d
`, stats.EventsSuccessful, stats.EventsDuplicate, stats.EventsConflict, stats.EventsFailed)

	return nil
}

// submitSingleEvent submits one attempt and classifies the outcome.
func submitSingleEvent(ctx context.Context, client *HTTPClient, url string, sub *Submission) string {
	resp, err := client.Post(ctx, url, sub.Event)
	if err != nil {
		return "failed"
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return "failed"
	}

	switch resp.StatusCode {
	case StatusOK:
		var merged MergeResponse
		if err := json.Unmarshal(body, &merged); err == nil && merged.Status == "already_processed" {
			return "duplicate"
		}
		return "success"
	case StatusConflict:
		// Another attempt holds the claim right now; the idempotent
		// retry semantics make this safe to count and move on.
		return "conflict"
	default:
		return "failed"
	}
}
