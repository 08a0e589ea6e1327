package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stormsignal/weather-notify/internal/config"
)

// FetchError wraps any failure talking to the active-alerts feed:
// network errors, non-2xx responses, malformed JSON. A fetch failure
// aborts the whole dispatch cycle; the next scheduled run is the only
// retry.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching alerts from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RawAlert is one feature from the feed, parsed into typed fields at
// the ingestion boundary. Timestamps stay as the feed's ISO-8601 text;
// the alert store owns parsing them.
type RawAlert struct {
	ID          string
	Event       string
	Headline    string
	Description string
	Instruction string
	Response    string
	SenderName  string
	AreaDesc    string
	Status      string
	MessageType string
	Category    string
	Severity    string
	Certainty   string
	Urgency     string
	Geocodes    []string
	Parameters  map[string][]string
	Sent        string
	Effective   string
	Onset       string
	Expires     string
	Ends        string
}

type feedResponse struct {
	Features []feedFeature `json:"features"`
}

type feedFeature struct {
	Properties feedProperties  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type feedProperties struct {
	ID          string              `json:"id"`
	AreaDesc    string              `json:"areaDesc"`
	Geocode     feedGeocode         `json:"geocode"`
	Sent        string              `json:"sent"`
	Effective   string              `json:"effective"`
	Onset       string              `json:"onset"`
	Expires     string              `json:"expires"`
	Ends        string              `json:"ends"`
	Status      string              `json:"status"`
	MessageType string              `json:"messageType"`
	Category    string              `json:"category"`
	Severity    string              `json:"severity"`
	Certainty   string              `json:"certainty"`
	Urgency     string              `json:"urgency"`
	Event       string              `json:"event"`
	SenderName  string              `json:"senderName"`
	Headline    string              `json:"headline"`
	Description string              `json:"description"`
	Instruction string              `json:"instruction"`
	Response    string              `json:"response"`
	Parameters  map[string][]string `json:"parameters"`
}

type feedGeocode struct {
	SAME []string `json:"SAME"`
	UGC  []string `json:"UGC"`
}

// Client reads the public active-alerts feed. It is a pure reader: no
// retries, no caching, no state beyond configuration.
type Client struct {
	url       string
	userAgent string
	http      *http.Client
}

func NewClient(cfg config.FeedConfig) *Client {
	return &Client{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// FetchActiveAlerts returns every currently active alert in the feed.
// An empty feed yields an empty slice and no error. Features without
// an ID are skipped.
func (c *Client) FetchActiveAlerts(ctx context.Context) ([]RawAlert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	// The feed operator requires contact info in the User-Agent.
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: c.url, Err: fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)}
	}

	var data feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &FetchError{URL: c.url, Err: fmt.Errorf("decoding response: %w", err)}
	}

	alerts := make([]RawAlert, 0, len(data.Features))
	for _, f := range data.Features {
		p := f.Properties
		if p.ID == "" {
			continue
		}
		alerts = append(alerts, RawAlert{
			ID:          p.ID,
			Event:       p.Event,
			Headline:    p.Headline,
			Description: p.Description,
			Instruction: p.Instruction,
			Response:    p.Response,
			SenderName:  p.SenderName,
			AreaDesc:    p.AreaDesc,
			Status:      p.Status,
			MessageType: p.MessageType,
			Category:    p.Category,
			Severity:    p.Severity,
			Certainty:   p.Certainty,
			Urgency:     p.Urgency,
			Geocodes:    p.Geocode.SAME,
			Parameters:  p.Parameters,
			Sent:        p.Sent,
			Effective:   p.Effective,
			Onset:       p.Onset,
			Expires:     p.Expires,
			Ends:        p.Ends,
		})
	}

	return alerts, nil
}
