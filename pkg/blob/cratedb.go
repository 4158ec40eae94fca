package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CrateStore talks to CrateDB's HTTP blob endpoint
// (/_blobs/<table>/<digest>). Uploads are idempotent: CrateDB answers
// 409 when the digest already exists, which Put treats as success.
type CrateStore struct {
	baseURL    *url.URL
	table      string
	httpClient *http.Client
}

// CrateConfig configures a CrateStore. BaseURL is the cluster's HTTP
// endpoint (e.g. "http://localhost:4200"); Table is the blob table
// name.
type CrateConfig struct {
	BaseURL string
	Table   string
	Timeout time.Duration
}

func NewCrateStore(cfg CrateConfig) (*CrateStore, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid blob store URL: %w", err)
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("blob table name is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CrateStore{
		baseURL:    parsed,
		table:      cfg.Table,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// InitStatement returns the idempotent blob-table creation statement,
// to be issued once against the cluster at startup.
func (s *CrateStore) InitStatement() string {
	return "create blob table if not exists " + s.table
}

func (s *CrateStore) blobURL(digest string) string {
	return s.baseURL.JoinPath("_blobs", s.table, digest).String()
}

func (s *CrateStore) Put(ctx context.Context, data []byte) (string, error) {
	digest := Digest(data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.blobURL(digest), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building blob request: %w", err)
	}
	req.ContentLength = int64(len(data))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading blob %s: %w", digest, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusConflict:
		// 409 means the content is already stored under this digest.
		return digest, nil
	default:
		return "", fmt.Errorf("uploading blob %s: unexpected status %s", digest, resp.Status)
	}
}

func (s *CrateStore) Get(ctx context.Context, digest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.blobURL(digest), nil)
	if err != nil {
		return nil, fmt.Errorf("building blob request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching blob %s: %w", digest, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading blob %s: %w", digest, err)
		}
		return data, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("blob %s: %w", digest, ErrNotFound)
	default:
		return nil, fmt.Errorf("fetching blob %s: unexpected status %s", digest, resp.Status)
	}
}
