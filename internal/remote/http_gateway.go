package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goldengai/venuesync/internal/config"
	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/observability"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxResponseBytes = 16 << 20

// ProjectHeader carries the configured project id on every endpoint request
const ProjectHeader = "X-Project-ID"

// HTTPGateway talks JSON to the hosted venue store
type HTTPGateway struct {
	baseURL    *url.URL
	projectID  string
	httpClient *http.Client
	// plainClient fetches absolute refs on other hosts without credentials
	plainClient *http.Client
	blobs       BlobStore
}

// NewHTTPGateway builds an authenticated client for cfg.
// Client credentials take precedence over a static API key.
func NewHTTPGateway(ctx context.Context, cfg config.Remote, blobs BlobStore) (*HTTPGateway, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote endpoint scheme %q", base.Scheme)
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseClient := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, baseClient)

	var client *http.Client
	switch {
	case cfg.UsesClientCredentials():
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(ctx)
	case cfg.APIKey != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIKey,
			TokenType:   "Bearer",
		}))
	default:
		client = baseClient
	}
	client.Timeout = timeout

	return &HTTPGateway{
		baseURL:     base,
		projectID:   cfg.ProjectID,
		httpClient:  client,
		plainClient: &http.Client{Timeout: timeout},
		blobs:       blobs,
	}, nil
}

func (g *HTTPGateway) Mode() string { return ModeLive }

type pushRequest struct {
	Since  *time.Time      `json:"since,omitempty"`
	Venues []*models.Venue `json:"venues"`
}

type pushResponse struct {
	Accepted    int      `json:"accepted"`
	RejectedIDs []string `json:"rejectedIds"`
}

// PushVenues sends venues written after since
func (g *HTTPGateway) PushVenues(ctx context.Context, venues []*models.Venue, since time.Time) (PushResult, error) {
	ctx, span := observability.StartClientSpan(ctx, "PushVenues")
	defer span.End()

	batch := make([]*models.Venue, 0, len(venues))
	for _, v := range venues {
		if v.ModifiedAfter(since) {
			batch = append(batch, v)
		}
	}
	result := PushResult{Requested: len(batch)}
	if len(batch) == 0 {
		return result, nil
	}

	body := pushRequest{Venues: batch}
	if !since.IsZero() {
		body.Since = &since
	}

	var resp pushResponse
	if err := g.doJSON(ctx, http.MethodPost, "/v1/venues/sync", nil, body, &resp); err != nil {
		observability.RecordError(span, err)
		return result, err
	}
	if resp.Accepted < 0 || resp.Accepted > len(batch) {
		err := fmt.Errorf("%w: accepted %d of %d venues", models.ErrInvalidResponse, resp.Accepted, len(batch))
		observability.RecordError(span, err)
		return result, err
	}

	result.Accepted = resp.Accepted
	result.RejectedIDs = resp.RejectedIDs
	observability.SetSuccess(span)
	return result, nil
}

type venueInfoPage struct {
	Items []models.VenueInfo `json:"items"`
}

// PullVenueInfo fetches venue info changed after since
func (g *HTTPGateway) PullVenueInfo(ctx context.Context, since time.Time) ([]models.VenueInfo, error) {
	ctx, span := observability.StartClientSpan(ctx, "PullVenueInfo")
	defer span.End()

	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}

	var page venueInfoPage
	if err := g.doJSON(ctx, http.MethodGet, "/v1/venue-info", q, nil, &page); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	items := page.Items[:0]
	for _, it := range page.Items {
		if strings.TrimSpace(it.ID) != "" {
			items = append(items, it)
		}
	}
	observability.SetSuccess(span)
	return items, nil
}

// FetchVenueInfo returns nil when the remote has no record for id
func (g *HTTPGateway) FetchVenueInfo(ctx context.Context, id string) (*models.VenueInfo, error) {
	ctx, span := observability.StartClientSpan(ctx, "FetchVenueInfo", observability.VenueID(id))
	defer span.End()

	var info models.VenueInfo
	err := g.doJSON(ctx, http.MethodGet, "/v1/venue-info/"+url.PathEscape(id), nil, nil, &info)
	if errors.Is(err, errRemoteNotFound) {
		observability.SetSuccess(span)
		return nil, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if info.ID == "" {
		info.ID = id
	}
	observability.SetSuccess(span)
	return &info, nil
}

type uploadResponse struct {
	Ref string `json:"ref"`
}

// UploadBlob stores image bytes and returns the remote reference
func (g *HTTPGateway) UploadBlob(ctx context.Context, data []byte, ownerID string) (string, error) {
	ctx, span := observability.StartClientSpan(ctx, "UploadBlob", observability.VenueID(ownerID))
	defer span.End()

	if g.blobs != nil {
		ref, err := g.blobs.Put(ctx, ownerID, data)
		if err != nil {
			observability.RecordError(span, err)
			return "", err
		}
		observability.SetSuccess(span)
		return ref, nil
	}

	q := url.Values{"owner": {ownerID}}
	req, err := g.newRequest(ctx, http.MethodPost, "/v1/blobs", q, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	var resp uploadResponse
	if err := g.do(req, &resp); err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	if resp.Ref == "" {
		err := fmt.Errorf("%w: empty blob reference", models.ErrInvalidResponse)
		observability.RecordError(span, err)
		return "", err
	}
	observability.SetSuccess(span)
	return resp.Ref, nil
}

// DownloadBlob fetches the bytes behind ref
func (g *HTTPGateway) DownloadBlob(ctx context.Context, ref string) ([]byte, error) {
	ctx, span := observability.StartClientSpan(ctx, "DownloadBlob")
	defer span.End()

	if g.blobs != nil && strings.HasPrefix(ref, s3Scheme) {
		data, err := g.blobs.Get(ctx, ref)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		observability.SetSuccess(span)
		return data, nil
	}

	var req *http.Request
	var err error
	client := g.httpClient
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		// Credentials only go to the configured endpoint
		if err == nil && !strings.EqualFold(req.URL.Host, g.baseURL.Host) {
			client = g.plainClient
		}
	} else {
		req, err = g.newRequest(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(ref), nil, nil)
	}
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		observability.RecordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		err = classifyTransportError(err)
		observability.RecordError(span, err)
		return nil, err
	}
	observability.SetSuccess(span)
	return data, nil
}

func (g *HTTPGateway) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := *g.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.projectID != "" {
		req.Header.Set(ProjectHeader, g.projectID)
	}
	return req, nil
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := g.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.do(req, out)
}

func (g *HTTPGateway) do(req *http.Request, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
	}
	return nil
}

var errRemoteNotFound = fmt.Errorf("%w: remote resource not found", models.ErrInvalidResponse)

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", models.ErrAuthenticationFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return errRemoteNotFound
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", models.ErrTimeout, resp.StatusCode)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", models.ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}

// classifyTransportError maps client failures onto sync errors
func classifyTransportError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", models.ErrAuthenticationFailed, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", models.ErrNoConnectivity, err)
	}
	return fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
}
