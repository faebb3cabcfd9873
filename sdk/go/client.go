package retentionsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Retentionline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID and ActorName are sent as legacy identity headers when no
	// credentials are set. Only servers in development mode accept them.
	ActorID    string
	ActorName  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Alert represents the API alert model.
type Alert struct {
	ID                string `json:"id"`
	UnitID            string `json:"unit_id"`
	StudentRef        string `json:"student_ref"`
	StudentName       string `json:"student_name,omitempty"`
	ClassRef          string `json:"class_ref,omitempty"`
	OriginCategory    string `json:"origin_category"`
	Description       string `json:"description,omitempty"`
	ReportedBy        string `json:"reported_by"`
	OccurredOn        string `json:"occurred_on"`
	RetentionDeadline string `json:"retention_deadline,omitempty"`
	Status            string `json:"status"`
	KanbanColumn      string `json:"kanban_column"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// NewAlert is the request body for CreateAlert.
type NewAlert struct {
	StudentRef        string `json:"student_ref"`
	StudentName       string `json:"student_name,omitempty"`
	ClassRef          string `json:"class_ref,omitempty"`
	OriginCategory    string `json:"origin_category"`
	Description       string `json:"description,omitempty"`
	OccurredOn        string `json:"occurred_on"`
	RetentionDeadline string `json:"retention_deadline,omitempty"`
	Priority          string `json:"priority,omitempty"`
}

// Activity represents a remediation task.
type Activity struct {
	ID                    string `json:"id"`
	AlertID               string `json:"alert_id"`
	Type                  string `json:"type"`
	Description           string `json:"description,omitempty"`
	ResponsiblePersonID   string `json:"responsible_person_id,omitempty"`
	ResponsiblePersonName string `json:"responsible_person_name,omitempty"`
	ResponsibleDepartment string `json:"responsible_department,omitempty"`
	ResponsibleTeacherID  string `json:"responsible_teacher_id,omitempty"`
	Status                string `json:"status"`
	ScheduledDate         string `json:"scheduled_date,omitempty"`
	StartTime             string `json:"start_time,omitempty"`
	EndTime               string `json:"end_time,omitempty"`
	PreviousActivityID    string `json:"previous_activity_id,omitempty"`
	BundleID              string `json:"bundle_id,omitempty"`
	BundleKind            string `json:"bundle_kind,omitempty"`
	CompletedBy           string `json:"completed_by,omitempty"`
	CompletedAt           string `json:"completed_at,omitempty"`
	CreatedAt             string `json:"created_at"`
}

// NewActivity is the request body for CreateActivity.
type NewActivity struct {
	Type               string `json:"type"`
	Description        string `json:"description,omitempty"`
	PreviousActivityID string `json:"previous_activity_id,omitempty"`
	ClassID            string `json:"class_id,omitempty"`
	ScheduledDate      string `json:"scheduled_date,omitempty"`
	StartTime          string `json:"start_time,omitempty"`
	EndTime            string `json:"end_time,omitempty"`
}

// NegotiationResult is returned by ResolveNegotiation.
type NegotiationResult struct {
	Negotiation Activity   `json:"negotiation"`
	Spawned     []Activity `json:"spawned"`
	Alert       Alert      `json:"alert"`
}

// Card represents a retention board card.
type Card struct {
	ID            string   `json:"id"`
	AlertID       string   `json:"alert_id"`
	Column        string   `json:"column"`
	Priority      string   `json:"priority"`
	Tags          []string `json:"tags"`
	Notes         string   `json:"notes,omitempty"`
	Attachments   []string `json:"attachments"`
	DueDate       string   `json:"due_date,omitempty"`
	ResultOutcome string   `json:"result_outcome,omitempty"`
	FinalizedAt   string   `json:"finalized_at,omitempty"`
	FinalizedBy   string   `json:"finalized_by,omitempty"`
}

// CardUpdate is a partial card update; nil fields are left unchanged.
type CardUpdate struct {
	Priority    *string   `json:"priority,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Attachments *[]string `json:"attachments,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
}

// BoardEntry pairs a card with its alert.
type BoardEntry struct {
	Card  Card  `json:"card"`
	Alert Alert `json:"alert"`
}

// Window is a statistics period.
type Window struct {
	Kind  string    `json:"kind"`
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Comparison holds a reference period and the delta against it.
type Comparison struct {
	Window            Window  `json:"window"`
	Total             int     `json:"total"`
	Churned           int     `json:"churned"`
	Retained          int     `json:"retained"`
	RetentionRate     float64 `json:"retention_rate"`
	PercentPointDelta int     `json:"percent_point_delta"`
}

// PeriodStatistics is one entry of the statistics endpoint.
type PeriodStatistics struct {
	Window        Window     `json:"window"`
	Total         int        `json:"total"`
	Churned       int        `json:"churned"`
	Retained      int        `json:"retained"`
	RetentionRate float64    `json:"retention_rate"`
	Previous      Comparison `json:"previous"`
	PriorYear     Comparison `json:"prior_year"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	UnitID     string         `json:"unit_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAlert opens a retention alert.
func (c *Client) CreateAlert(ctx context.Context, in NewAlert) (Alert, error) {
	var resp Alert
	err := c.do(ctx, http.MethodPost, "alerts", in, &resp)
	return resp, err
}

// GetAlert fetches an alert by id.
func (c *Client) GetAlert(ctx context.Context, id string) (Alert, error) {
	var resp Alert
	err := c.do(ctx, http.MethodGet, "alerts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetAlertStatus applies a status transition.
func (c *Client) SetAlertStatus(ctx context.Context, id, status string) (Alert, error) {
	var resp Alert
	err := c.do(ctx, http.MethodPost, "alerts/"+url.PathEscape(id)+"/status", map[string]string{"status": status}, &resp)
	return resp, err
}

// CreateActivity creates an activity and returns every activity spawned.
func (c *Client) CreateActivity(ctx context.Context, alertID string, in NewActivity) ([]Activity, error) {
	var resp struct {
		Items []Activity `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "alerts/"+url.PathEscape(alertID)+"/activities", in, &resp)
	return resp.Items, err
}

// ListActivities returns an alert's activities oldest first.
func (c *Client) ListActivities(ctx context.Context, alertID string) ([]Activity, error) {
	var resp struct {
		Items []Activity `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "alerts/"+url.PathEscape(alertID)+"/activities", nil, &resp)
	return resp.Items, err
}

// CompleteActivity completes an activity. Repeating it is harmless.
func (c *Client) CompleteActivity(ctx context.Context, id string) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPost, "activities/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

// ResolveNegotiation records a negotiation outcome. endDate is only used
// for temporary_adjustment.
func (c *Client) ResolveNegotiation(ctx context.Context, id, outcome, endDate, notes string) (NegotiationResult, error) {
	body := map[string]string{"outcome": outcome}
	if endDate != "" {
		body["end_date"] = endDate
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp NegotiationResult
	err := c.do(ctx, http.MethodPost, "activities/"+url.PathEscape(id)+"/negotiation", body, &resp)
	return resp, err
}

// CardForAlert returns the board card of an alert.
func (c *Client) CardForAlert(ctx context.Context, alertID string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodGet, "alerts/"+url.PathEscape(alertID)+"/card", nil, &resp)
	return resp, err
}

// Board lists cards, optionally filtered by column.
func (c *Client) Board(ctx context.Context, column string) ([]BoardEntry, error) {
	endpoint := "board"
	if column != "" {
		endpoint += "?column=" + url.QueryEscape(column)
	}
	var resp struct {
		Items []BoardEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// MoveCard moves a card to a column.
func (c *Client) MoveCard(ctx context.Context, id, column string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, "cards/"+url.PathEscape(id)+"/move", map[string]string{"column": column}, &resp)
	return resp, err
}

// UpdateCard applies a partial update.
func (c *Client) UpdateCard(ctx context.Context, id string, u CardUpdate) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPatch, "cards/"+url.PathEscape(id), u, &resp)
	return resp, err
}

// FinalizeCard locks the card outcome (evaded or retained).
func (c *Client) FinalizeCard(ctx context.Context, id, outcome string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, "cards/"+url.PathEscape(id)+"/finalize", map[string]string{"outcome": outcome}, &resp)
	return resp, err
}

// Statistics returns month, quarter, semester and year statistics.
func (c *Client) Statistics(ctx context.Context) ([]PeriodStatistics, error) {
	var resp []PeriodStatistics
	err := c.do(ctx, http.MethodGet, "statistics", nil, &resp)
	return resp, err
}

// EventsPage returns events after cursor, oldest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
		if c.ActorName != "" {
			req.Header.Set("X-Actor-Name", c.ActorName)
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
