// Package vectorstore manages the Qdrant collection the application writes
// embeddings into.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	// DefaultCollection matches the collection the document ingester writes to.
	DefaultCollection = "document_chunks"
	// DefaultVectorSize is the embedding dimension of the default model.
	DefaultVectorSize = 768
	// DefaultDistance is the similarity metric for the default model.
	DefaultDistance = "Cosine"

	defaultRequestTimeout = 5 * time.Second
)

// ErrCollectionConflict is returned when the existing collection disagrees
// with the desired parameters and already holds points. Recreating it would
// silently drop data, so the caller has to resolve the conflict.
var ErrCollectionConflict = errors.New("collection exists with different parameters and is not empty")

// CollectionSpec is the desired shape of a collection.
type CollectionSpec struct {
	Name     string
	Size     int
	Distance string
}

// DefaultSpec returns the collection used by the document pipeline.
func DefaultSpec() CollectionSpec {
	return CollectionSpec{Name: DefaultCollection, Size: DefaultVectorSize, Distance: DefaultDistance}
}

func (s CollectionSpec) validate() error {
	if s.Name == "" {
		return errors.New("collection name is required")
	}
	if s.Size <= 0 {
		return errors.New("vector size must be positive")
	}
	if s.Distance == "" {
		return errors.New("distance metric is required")
	}
	return nil
}

// Client talks to the Qdrant REST API.
type Client struct {
	logger  zerolog.Logger
	baseURL string
	httpc   *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// NewClient builds a client for the given base URL, such as
// "http://localhost:6333".
func NewClient(logger zerolog.Logger, baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("qdrant base url is required")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.HTTPClient.Timeout = defaultRequestTimeout
	retryClient.Logger = nil

	client := &Client{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   retryClient.StandardClient(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type collectionInfo struct {
	exists   bool
	size     int
	distance string
	points   int64
}

// EnsureCollection makes the collection match the spec. A missing collection
// is created, a matching one is kept, and a mismatched empty one is dropped
// and recreated. A mismatched collection that holds points is an error.
func (c *Client) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	info, err := c.getCollection(ctx, spec.Name)
	if err != nil {
		return err
	}

	if !info.exists {
		c.logger.Info().Str("collection", spec.Name).Msg("creating collection")
		return c.createCollection(ctx, spec)
	}

	if info.size == spec.Size && strings.EqualFold(info.distance, spec.Distance) {
		c.logger.Debug().Str("collection", spec.Name).Int64("points", info.points).Msg("collection matches")
		return nil
	}

	if info.points > 0 {
		return fmt.Errorf("collection %s has size=%d distance=%s with %d points, want size=%d distance=%s: %w",
			spec.Name, info.size, info.distance, info.points, spec.Size, spec.Distance, ErrCollectionConflict)
	}

	c.logger.Warn().
		Str("collection", spec.Name).
		Int("have_size", info.size).
		Int("want_size", spec.Size).
		Msg("recreating empty collection with mismatched parameters")
	if err := c.deleteCollection(ctx, spec.Name); err != nil {
		return err
	}
	return c.createCollection(ctx, spec)
}

// Reset drops and recreates the collection. Destructive: callers must pass
// force explicitly.
func (c *Client) Reset(ctx context.Context, spec CollectionSpec, force bool) error {
	if err := spec.validate(); err != nil {
		return err
	}
	if !force {
		return errors.New("reset requires force")
	}

	info, err := c.getCollection(ctx, spec.Name)
	if err != nil {
		return err
	}
	if info.exists {
		c.logger.Warn().Str("collection", spec.Name).Int64("points", info.points).Msg("dropping collection")
		if err := c.deleteCollection(ctx, spec.Name); err != nil {
			return err
		}
	}
	return c.createCollection(ctx, spec)
}

func (c *Client) getCollection(ctx context.Context, name string) (collectionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL(name), nil)
	if err != nil {
		return collectionInfo{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return collectionInfo{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return collectionInfo{}, nil
	case http.StatusOK:
	default:
		return collectionInfo{}, fmt.Errorf("get collection %s: unexpected status %d", name, resp.StatusCode)
	}

	var payload struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return collectionInfo{}, fmt.Errorf("decode collection %s: %w", name, err)
	}

	return collectionInfo{
		exists:   true,
		size:     payload.Result.Config.Params.Vectors.Size,
		distance: payload.Result.Config.Params.Vectors.Distance,
		points:   payload.Result.PointsCount,
	}, nil
}

func (c *Client) createCollection(ctx context.Context, spec CollectionSpec) error {
	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     spec.Size,
			"distance": spec.Distance,
		},
	})
	if err != nil {
		return fmt.Errorf("encode collection spec: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.collectionURL(spec.Name), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", spec.Name, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("create collection %s: unexpected status %d", spec.Name, resp.StatusCode)
	}
	return nil
}

func (c *Client) deleteCollection(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.collectionURL(name), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete collection %s: unexpected status %d", name, resp.StatusCode)
	}
	return nil
}

func (c *Client) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", c.baseURL, name)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
