// Package registry provides submission sources for batch imports.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
)

type canvasAttachment struct {
	ID          int64  `json:"id"`
	UUID        string `json:"uuid"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

type canvasSubmission struct {
	ID            int64              `json:"id"`
	UserID        int64              `json:"user_id"`
	WorkflowState string             `json:"workflow_state"`
	Attachments   []canvasAttachment `json:"attachments"`
}

type canvasProfile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CanvasRegistry reads submissions from the Canvas LMS REST API.
type CanvasRegistry struct {
	client   *http.Client
	baseURL  string
	pageSize int
	logger   *slog.Logger
}

// NewCanvasRegistry authenticates every request with the configured API token.
func NewCanvasRegistry(ctx context.Context, cfg *config.CanvasConfig, logger *slog.Logger) *CanvasRegistry {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken})
	return NewCanvasRegistryWithClient(oauth2.NewClient(ctx, ts), cfg.BaseURL, cfg.PageSize, logger)
}

// NewCanvasRegistryWithClient uses an already authenticated client.
func NewCanvasRegistryWithClient(client *http.Client, baseURL string, pageSize int, logger *slog.Logger) *CanvasRegistry {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &CanvasRegistry{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		logger:   logger,
	}
}

// ListSubmissions returns submitted work with an attachment, following pagination.
func (c *CanvasRegistry) ListSubmissions(ctx context.Context, courseID, activityID string) ([]core.Submission, error) {
	next := fmt.Sprintf("%s/api/v1/courses/%s/assignments/%s/submissions?per_page=%d",
		c.baseURL, url.PathEscape(courseID), url.PathEscape(activityID), c.pageSize)

	var out []core.Submission
	for next != "" {
		var page []canvasSubmission
		link, err := c.get(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		for _, s := range page {
			if s.WorkflowState == "unsubmitted" || len(s.Attachments) == 0 {
				continue
			}
			ref := s.Attachments[0].UUID
			if ref == "" {
				ref = strconv.FormatInt(s.Attachments[0].ID, 10)
			}
			out = append(out, core.Submission{
				PaperID:       strconv.FormatInt(s.ID, 10),
				AuthorID:      strconv.FormatInt(s.UserID, 10),
				AttachmentRef: ref,
			})
		}
		next = nextLink(link)
	}
	c.logger.Debug("listed canvas submissions", "course", courseID, "activity", activityID, "count", len(out))
	return out, nil
}

// ResolveAuthor returns the profile name of a Canvas user.
func (c *CanvasRegistry) ResolveAuthor(ctx context.Context, authorID string) (string, error) {
	var profile canvasProfile
	if _, err := c.get(ctx, fmt.Sprintf("%s/api/v1/users/%s/profile", c.baseURL, url.PathEscape(authorID)), &profile); err != nil {
		return "", err
	}
	if profile.Name == "" {
		return "", fmt.Errorf("%w: no name for user %s", core.ErrNotFound, authorID)
	}
	return profile.Name, nil
}

func (c *CanvasRegistry) get(ctx context.Context, rawURL string, v any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build canvas request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("canvas request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", core.ErrNotFound, req.URL.Path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("canvas returned %d for %s: %s", resp.StatusCode, req.URL.Path, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return "", fmt.Errorf("failed to decode canvas response: %w", err)
	}
	return resp.Header.Get("Link"), nil
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if ok && strings.EqualFold(key, "rel") && strings.Trim(value, `"`) == "next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
