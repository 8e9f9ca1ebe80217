package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	resourceSessions = "sessions"
	resourceCatches  = "catches"

	conflictKey = "client_uuid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errMissingBaseURL = errors.New("backend: base url is required")

// RESTConfig describes how to reach the remote REST service.
type RESTConfig struct {
	BaseURL    string
	APIKey     string
	AuthToken  string
	HTTPClient *http.Client
}

// RESTAdapter talks to a PostgREST-style API: upserts are POSTs resolved
// on the client_uuid natural key, reads are GETs with column filters.
type RESTAdapter struct {
	baseURL    string
	apiKey     string
	authToken  string
	httpClient *http.Client
}

// NewRESTAdapter constructs an adapter with the provided configuration.
func NewRESTAdapter(cfg RESTConfig) (*RESTAdapter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTAdapter{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		httpClient: httpClient,
	}, nil
}

// UpsertSession inserts or updates a session by its client_uuid and
// returns the full remote record.
func (a *RESTAdapter) UpsertSession(ctx context.Context, payload SessionPayload) (RemoteSession, error) {
	var record RemoteSession
	if err := a.upsert(ctx, resourceSessions, payload, &record); err != nil {
		return RemoteSession{}, err
	}
	return record, nil
}

// UpsertCatch inserts or updates a catch by its client_uuid and returns
// the full remote record.
func (a *RESTAdapter) UpsertCatch(ctx context.Context, payload CatchPayload) (RemoteCatch, error) {
	var record RemoteCatch
	if err := a.upsert(ctx, resourceCatches, payload, &record); err != nil {
		return RemoteCatch{}, err
	}
	return record, nil
}

// SessionsUpdatedSince reads the caller's sessions changed after the
// watermark; a nil watermark reads everything.
func (a *RESTAdapter) SessionsUpdatedSince(ctx context.Context, userID string, since *time.Time) ([]RemoteSession, error) {
	filters := url.Values{}
	filters.Set("user_id", "eq."+userID)
	if since != nil {
		filters.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}

	var records []RemoteSession
	if err := a.selectRows(ctx, resourceSessions, filters, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CatchesUpdatedSince reads catches changed after the watermark. The
// catches resource carries no owner column; partitioning flows through
// the session linkage.
func (a *RESTAdapter) CatchesUpdatedSince(ctx context.Context, since *time.Time) ([]RemoteCatch, error) {
	filters := url.Values{}
	if since != nil {
		filters.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}

	var records []RemoteCatch
	if err := a.selectRows(ctx, resourceCatches, filters, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *RESTAdapter) upsert(ctx context.Context, resource string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("unencodable payload: %v", err)}
	}

	endpoint := fmt.Sprintf("%s/%s?on_conflict=%s", a.baseURL, resource, conflictKey)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransientError{Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")
	a.setAuthHeaders(request)

	response, err := a.httpClient.Do(request)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer response.Body.Close()

	if err := classifyStatus(response); err != nil {
		return err
	}

	// Representation comes back as a single-element array.
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return &TransientError{Err: err}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []jsoniter.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return &ValidationError{Message: fmt.Sprintf("undecodable upsert response: %v", err)}
		}
		if len(rows) == 0 {
			return &ValidationError{Message: "upsert returned no representation"}
		}
		trimmed = rows[0]
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &ValidationError{Message: fmt.Sprintf("undecodable upsert record: %v", err)}
	}
	return nil
}

func (a *RESTAdapter) selectRows(ctx context.Context, resource string, filters url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s/%s", a.baseURL, resource)
	if encoded := filters.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &TransientError{Err: err}
	}
	a.setAuthHeaders(request)

	response, err := a.httpClient.Do(request)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer response.Body.Close()

	if err := classifyStatus(response); err != nil {
		return err
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return &ValidationError{Message: fmt.Sprintf("undecodable select response: %v", err)}
	}
	return nil
}

func (a *RESTAdapter) setAuthHeaders(request *http.Request) {
	if a.apiKey != "" {
		request.Header.Set("apikey", a.apiKey)
	}
	if a.authToken != "" {
		request.Header.Set("Authorization", "Bearer "+a.authToken)
	}
}

func classifyStatus(response *http.Response) error {
	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return nil
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: response.StatusCode, Message: readErrorBody(response)}
	case response.StatusCode >= 400 && response.StatusCode < 500:
		return &ValidationError{StatusCode: response.StatusCode, Message: readErrorBody(response)}
	default:
		return &TransientError{Err: fmt.Errorf("status %d: %s", response.StatusCode, readErrorBody(response))}
	}
}

func readErrorBody(response *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(response.Body, 2048))
	if err != nil {
		return response.Status
	}
	message := strings.TrimSpace(string(raw))
	if message == "" {
		return response.Status
	}
	return message
}
