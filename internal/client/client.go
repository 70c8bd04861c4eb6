// Package client is the HTTP client for the leaddesk API, shared by the CLI
// and the terminal UI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/crm"
	"github.com/fentz26/leaddesk/internal/models"
)

// DefaultTimeout is the default timeout for API requests.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Client calls the leaddesk API as one actor.
type Client struct {
	baseURL    string
	actor      crm.Actor
	httpClient *http.Client
}

// New creates a client for baseURL acting as actor.
func New(baseURL string, actor crm.Actor) *Client {
	return &Client{
		baseURL:    baseURL,
		actor:      actor,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Actor returns the identity the client sends.
func (c *Client) Actor() crm.Actor {
	return c.actor
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "client: build request")
	}
	if c.actor.ID != "" {
		req.Header.Set(crm.HeaderActorID, c.actor.ID)
		req.Header.Set(crm.HeaderActorRole, string(c.actor.Role))
	}
	return req, nil
}

// roundTrip performs req and returns the body of a 2xx response.
func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "client: API request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "client: read response")
	}

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := string(bytes.TrimSpace(body))
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return body, nil
}

func (c *Client) send(req *http.Request, out any) error {
	body, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "client: decode response")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "client: encode request")
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// Health checks that the server and its database are up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// --- Agents ---

// ListAgents lists agents, optionally filtered.
func (c *Client) ListAgents(ctx context.Context, role models.Role, status models.AgentStatus) ([]models.Agent, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", string(role))
	}
	if status != "" {
		q.Set("status", string(status))
	}
	var agents []models.Agent
	err := c.do(ctx, http.MethodGet, withQuery("/agents", q), nil, &agents)
	return agents, err
}

// CreateAgent adds an agent.
func (c *Client) CreateAgent(ctx context.Context, handle string, role models.Role) (*models.Agent, error) {
	var agent models.Agent
	err := c.do(ctx, http.MethodPost, "/agents", map[string]string{"handle": handle, "role": string(role)}, &agent)
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// SetAgentStatus changes an agent's status.
func (c *Client) SetAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	return c.do(ctx, http.MethodPut, "/agents/"+url.PathEscape(id)+"/status", map[string]string{"status": string(status)}, nil)
}

// DeleteAgent removes an agent and returns how many leads were released.
func (c *Client) DeleteAgent(ctx context.Context, id string) (int, error) {
	var out struct {
		Released int `json:"released_leads"`
	}
	err := c.do(ctx, http.MethodDelete, "/agents/"+url.PathEscape(id), nil, &out)
	return out.Released, err
}

// ResolveHandles swaps agent handles in reqs for agent IDs. Targets that
// match no handle are passed through unchanged.
func (c *Client) ResolveHandles(ctx context.Context, reqs []allocation.Request) ([]allocation.Request, error) {
	agents, err := c.ListAgents(ctx, "", "")
	if err != nil {
		return nil, err
	}
	byHandle := make(map[string]string, len(agents))
	for _, a := range agents {
		byHandle[a.Handle] = a.ID
	}
	out := make([]allocation.Request, len(reqs))
	for i, r := range reqs {
		if id, ok := byHandle[r.TargetID]; ok {
			r.TargetID = id
		}
		out[i] = r
	}
	return out, nil
}

// --- Batches ---

// ListBatches lists imported batches.
func (c *Client) ListBatches(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	err := c.do(ctx, http.MethodGet, "/batches", nil, &batches)
	return batches, err
}

// UploadBatch uploads an .xlsx or .csv file as a new batch.
func (c *Client) UploadBatch(ctx context.Context, path string, autoAssign bool) (*crm.ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "client: read upload")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, eris.Wrap(err, "client: build upload")
	}
	if _, err := fw.Write(data); err != nil {
		return nil, eris.Wrap(err, "client: build upload")
	}
	if err := mw.WriteField("auto_assign", strconv.FormatBool(autoAssign)); err != nil {
		return nil, eris.Wrap(err, "client: build upload")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "client: build upload")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/batches", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res crm.ImportResult
	if err := c.send(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type assignBody struct {
	Mode        string               `json:"mode,omitempty"`
	Assignments []allocation.Request `json:"assignments"`
	Role        models.Role          `json:"role,omitempty"`
}

// PlanBatch previews an assignment.
func (c *Client) PlanBatch(ctx context.Context, batchID, mode string, requests []allocation.Request) (*allocation.Plan, error) {
	var plan allocation.Plan
	err := c.do(ctx, http.MethodPost, "/batches/"+url.PathEscape(batchID)+"/plan", assignBody{Mode: mode, Assignments: requests}, &plan)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// AssignBatch distributes a batch's unassigned leads.
func (c *Client) AssignBatch(ctx context.Context, batchID, mode string, requests []allocation.Request, role models.Role) (*crm.AssignResult, error) {
	var res crm.AssignResult
	err := c.do(ctx, http.MethodPost, "/batches/"+url.PathEscape(batchID)+"/assign", assignBody{Mode: mode, Assignments: requests, Role: role}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Leads ---

// LeadQuery filters ListLeads.
type LeadQuery struct {
	Status     string
	AssignedTo string
	BatchID    string
	Unassigned bool
	// Stages matches the latest note stage, e.g. "connected" or "warm".
	Stages []string
	Search string
	Limit  int
}

// ListLeads lists leads visible to the actor.
func (c *Client) ListLeads(ctx context.Context, lq LeadQuery) ([]models.Lead, error) {
	q := url.Values{}
	if lq.Status != "" {
		q.Set("status", lq.Status)
	}
	if lq.AssignedTo != "" {
		q.Set("assigned_to", lq.AssignedTo)
	}
	if lq.BatchID != "" {
		q.Set("batch_id", lq.BatchID)
	}
	if lq.Unassigned {
		q.Set("unassigned", "true")
	}
	if len(lq.Stages) > 0 {
		q.Set("stage", strings.Join(lq.Stages, ","))
	}
	if lq.Search != "" {
		q.Set("q", lq.Search)
	}
	if lq.Limit > 0 {
		q.Set("limit", strconv.Itoa(lq.Limit))
	}
	var leads []models.Lead
	err := c.do(ctx, http.MethodGet, withQuery("/leads", q), nil, &leads)
	return leads, err
}

// GetLead fetches a lead with its notes.
func (c *Client) GetLead(ctx context.Context, id string) (*crm.LeadDetail, error) {
	var lead crm.LeadDetail
	if err := c.do(ctx, http.MethodGet, "/leads/"+url.PathEscape(id), nil, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// RecordOutcome logs a call attempt on a lead.
func (c *Client) RecordOutcome(ctx context.Context, leadID string, connected bool, reason string) (*models.LeadNote, error) {
	var note models.LeadNote
	body := map[string]any{"connected": connected, "reason": reason}
	if err := c.do(ctx, http.MethodPost, "/leads/"+url.PathEscape(leadID)+"/outcome", body, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// --- Callbacks ---

// ListCallbacks lists callbacks; status "" means pending and "all" means
// every status.
func (c *Client) ListCallbacks(ctx context.Context, agentID, status string) ([]models.Callback, error) {
	q := url.Values{}
	if agentID != "" {
		q.Set("agent_id", agentID)
	}
	if status != "" {
		q.Set("status", status)
	}
	var callbacks []models.Callback
	err := c.do(ctx, http.MethodGet, withQuery("/callbacks", q), nil, &callbacks)
	return callbacks, err
}

// UpdateCallback reschedules a callback or edits its note or status.
func (c *Client) UpdateCallback(ctx context.Context, id string, in crm.CallbackUpdate) (*models.Callback, error) {
	var cb models.Callback
	if err := c.do(ctx, http.MethodPut, "/callbacks/"+url.PathEscape(id), in, &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

// --- Projects and site visits ---

// ListProjects lists all projects.
func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, &projects)
	return projects, err
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProject edits the set fields of a project.
func (c *Client) UpdateProject(ctx context.Context, id string, in crm.ProjectUpdate) (*models.Project, error) {
	var p models.Project
	if err := c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(id), in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListSiteVisits lists visits by date, scope or agent.
func (c *Client) ListSiteVisits(ctx context.Context, sq crm.SiteVisitQuery) ([]models.SiteVisit, error) {
	q := url.Values{}
	if sq.Date != "" {
		q.Set("date", sq.Date)
	}
	if sq.Scope != "" {
		q.Set("scope", sq.Scope)
	}
	if sq.AgentID != "" {
		q.Set("agent_id", sq.AgentID)
	}
	var visits []models.SiteVisit
	err := c.do(ctx, http.MethodGet, withQuery("/site-visits", q), nil, &visits)
	return visits, err
}

// UpdateSiteVisit reschedules or edits a visit.
func (c *Client) UpdateSiteVisit(ctx context.Context, id string, in crm.SiteVisitUpdate) (*models.SiteVisit, error) {
	var v models.SiteVisit
	if err := c.do(ctx, http.MethodPut, "/site-visits/"+url.PathEscape(id), in, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Dashboard ---

// Stats fetches the dashboard summary.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// DownloadReport fetches a rendered report (xlsx, csv or json) for the
// days start through end.
func (c *Client) DownloadReport(ctx context.Context, kind, start, end, format string) ([]byte, error) {
	q := url.Values{"start": {start}, "end": {end}}
	if format != "" {
		q.Set("format", format)
	}
	req, err := c.newRequest(ctx, http.MethodGet, withQuery("/reports/"+url.PathEscape(kind), q), nil)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(req)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
