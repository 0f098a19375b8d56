// Package passback delivers reviewer reports to an LMS gradebook over the
// LTI Assignment and Grade Services score endpoint.
package passback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
)

const scoreContentType = "application/vnd.ims.lis.v1.score+json"

// Score is the AGS score document.
type Score struct {
	UserID           string   `json:"userId"`
	ScoreGiven       *float64 `json:"scoreGiven,omitempty"`
	ScoreMaximum     *float64 `json:"scoreMaximum,omitempty"`
	Comment          string   `json:"comment,omitempty"`
	Timestamp        string   `json:"timestamp"`
	ActivityProgress string   `json:"activityProgress"`
	GradingProgress  string   `json:"gradingProgress"`
}

// HTTPChannel implements core.PassbackChannel.
type HTTPChannel struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewHTTPChannel builds the gradebook client. With a token URL the client
// credentials grant is used; otherwise the static API token is sent, if any.
func NewHTTPChannel(ctx context.Context, cfg *config.PassbackConfig, logger *slog.Logger) *HTTPChannel {
	var client *http.Client
	switch {
	case cfg.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = cc.Client(ctx)
	case cfg.APIToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken})
		client = oauth2.NewClient(ctx, ts)
	default:
		client = &http.Client{}
	}
	client.Timeout = cfg.Timeout
	return NewHTTPChannelWithClient(client, logger)
}

// NewHTTPChannelWithClient uses an already authenticated client.
func NewHTTPChannelWithClient(client *http.Client, logger *slog.Logger) *HTTPChannel {
	return &HTTPChannel{client: client, logger: logger, now: time.Now}
}

// ReplaceResult posts the report as the reviewer's score comment. A nil score
// leaves the grade pending.
func (c *HTTPChannel) ReplaceResult(ctx context.Context, target *core.PassbackTarget, score *float64, reportText string) error {
	if target == nil || target.ServiceURL == "" {
		return fmt.Errorf("%w: missing passback target", core.ErrPassback)
	}

	doc := Score{
		UserID:           target.UserID,
		ScoreGiven:       score,
		Comment:          reportText,
		Timestamp:        c.now().UTC().Format(time.RFC3339Nano),
		ActivityProgress: "Completed",
		GradingProgress:  "Pending",
	}
	if score != nil {
		maximum := 1.0
		doc.ScoreMaximum = &maximum
		doc.GradingProgress = "FullyGraded"
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode score: %w", err)
	}

	url := strings.TrimRight(target.ServiceURL, "/") + "/scores"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPassback, err)
	}
	req.Header.Set("Content-Type", scoreContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPassback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: gradebook returned %d: %s", core.ErrPassback, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("score posted", "user", target.UserID, "url", url, "status", resp.StatusCode)
	return nil
}
