// Package registry talks to a container registry over the Docker Registry
// HTTP API v2.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const manifestAccept = "application/vnd.docker.distribution.manifest.v2+json, " +
	"application/vnd.oci.image.manifest.v1+json, " +
	"application/vnd.oci.image.index.v1+json"

var errNotFound = errors.New("registry: not found")

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func New(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing registry base URL")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse registry base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        slog.With("client", "registry"),
	}, nil
}

// Tags lists the tags of repository. A repository unknown to the registry
// has no tags.
func (c *Client) Tags(ctx context.Context, repository string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v2/"+repository+"/tags/list", nil)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tag list of %q: %w", repository, err)
	}
	return body.Tags, nil
}

func (c *Client) HasTags(ctx context.Context, repository string) (bool, error) {
	tags, err := c.Tags(ctx, repository)
	if err != nil {
		return false, err
	}
	return len(tags) > 0, nil
}

// DeleteTags removes every tag of repository by manifest digest. It reports
// false if any tag could not be removed; the remaining tags are still tried.
func (c *Client) DeleteTags(ctx context.Context, repository string) bool {
	tags, err := c.Tags(ctx, repository)
	if err != nil {
		c.log.Error("list registry tags failed", "repository", repository, "error", err)
		return false
	}

	ok := true
	deleted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		digest, err := c.digest(ctx, repository, tag)
		if errors.Is(err, errNotFound) {
			continue
		}
		if err != nil {
			c.log.Error("resolve registry tag failed", "repository", repository, "tag", tag, "error", err)
			ok = false
			continue
		}

		// Several tags may share one manifest.
		if _, seen := deleted[digest]; seen {
			continue
		}
		if err := c.deleteManifest(ctx, repository, digest); err != nil && !errors.Is(err, errNotFound) {
			c.log.Error("delete registry tag failed", "repository", repository, "tag", tag, "error", err)
			ok = false
			continue
		}
		deleted[digest] = struct{}{}
	}

	return ok
}

func (c *Client) digest(ctx context.Context, repository string, tag string) (string, error) {
	resp, err := c.do(ctx, http.MethodHead, "/v2/"+repository+"/manifests/"+url.PathEscape(tag), map[string]string{
		"Accept": manifestAccept,
	})
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	digest := resp.Header.Get("Docker-Content-Digest")
	if digest == "" {
		return "", fmt.Errorf("tag %q of %q has no content digest", tag, repository)
	}
	return digest, nil
}

func (c *Client) deleteManifest(ctx context.Context, repository string, digest string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v2/"+repository+"/manifests/"+digest, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do sends the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, method string, path string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return resp, nil
}
