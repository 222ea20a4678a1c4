package meetlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	calendarScope          = "https://www.googleapis.com/auth/calendar.events"
	DefaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"
)

// GoogleProvisioner creates a Calendar event with a Meet conference and
// returns its hangoutLink.
type GoogleProvisioner struct {
	client     *http.Client
	baseURL    string
	calendarID string
}

// NewGoogle uses client for every Calendar call. client must attach
// credentials (see NewGoogleFromCredentialsFile).
func NewGoogle(client *http.Client, baseURL, calendarID string) *GoogleProvisioner {
	if baseURL == "" {
		baseURL = DefaultCalendarBaseURL
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleProvisioner{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		calendarID: calendarID,
	}
}

// NewGoogleFromCredentialsFile reads a service-account JSON key and builds an
// OAuth2 client scoped to calendar events.
func NewGoogleFromCredentialsFile(ctx context.Context, path, calendarID string) (*GoogleProvisioner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, calendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	client.Timeout = 10 * time.Second
	return NewGoogle(client, "", calendarID), nil
}

func (p *GoogleProvisioner) Name() string { return "google" }

type calendarTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type calendarEvent struct {
	Summary        string         `json:"summary"`
	Start          calendarTime   `json:"start"`
	End            calendarTime   `json:"end"`
	Attendees      []attendee     `json:"attendees,omitempty"`
	ConferenceData conferenceData `json:"conferenceData"`
}

type attendee struct {
	Email string `json:"email"`
}

type conferenceData struct {
	CreateRequest createRequest `json:"createRequest"`
}

type createRequest struct {
	RequestID             string                `json:"requestId"`
	ConferenceSolutionKey conferenceSolutionKey `json:"conferenceSolutionKey"`
}

type conferenceSolutionKey struct {
	Type string `json:"type"`
}

// Provision inserts the event with conferenceDataVersion=1. A 4xx answer
// (other than 429) wraps ErrRejected.
func (p *GoogleProvisioner) Provision(ctx context.Context, req Request) (string, error) {
	dur := req.Duration
	if dur <= 0 {
		dur = time.Hour
	}
	ev := calendarEvent{
		Summary: "Mock interview: " + req.EventTitle,
		Start:   calendarTime{DateTime: req.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:     calendarTime{DateTime: req.Start.Add(dur).UTC().Format(time.RFC3339), TimeZone: "UTC"},
		ConferenceData: conferenceData{CreateRequest: createRequest{
			// Same pair and start yield the same request, so a retried
			// insert does not create a second conference.
			RequestID:             fmt.Sprintf("%s-%d", req.PairID.Hex(), req.Start.Unix()),
			ConferenceSolutionKey: conferenceSolutionKey{Type: "hangoutsMeet"},
		}},
	}
	for _, email := range req.Attendees {
		if email != "" {
			ev.Attendees = append(ev.Attendees, attendee{Email: email})
		}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode calendar event: %w", err)
	}

	apiURL := fmt.Sprintf("%s/calendars/%s/events?conferenceDataVersion=1", p.baseURL, url.PathEscape(p.calendarID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build calendar request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calendar insert: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read calendar response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: calendar API status %d", ErrRejected, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("calendar API status %d", resp.StatusCode)
	}

	var out struct {
		HangoutLink string `json:"hangoutLink"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parse calendar response: %w", err)
	}
	if out.HangoutLink == "" {
		return "", fmt.Errorf("calendar response has no hangoutLink")
	}
	return out.HangoutLink, nil
}
