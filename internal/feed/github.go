package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

const defaultBaseURL = "https://api.github.com"

type Config struct {
	Token   string
	BaseURL string        // empty means api.github.com
	Timeout time.Duration // bounds one API call; 0 means 15s
}

// Client talks to the GitHub notifications REST API.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("feed token is empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, log: log}, nil
}

// notificationJSON mirrors the subset of the GitHub notifications
// payload the relay cares about.
type notificationJSON struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Subject struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Type  string `json:"type"`
	} `json:"subject"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ListOpenItems fetches the current unread notification threads.
// Any transport, status or decode failure is returned whole; callers
// skip the tick rather than reconcile a partial list.
func (c *Client) ListOpenItems(ctx context.Context) ([]Item, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/notifications", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError("list", resp)
	}

	var raw []notificationJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("feed list: decode: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for _, n := range raw {
		if n.ID == "" {
			continue
		}
		items = append(items, Item{
			ID:     n.ID,
			Title:  n.Subject.Title,
			URL:    n.Subject.URL,
			Type:   n.Subject.Type,
			Reason: n.Reason,
			Repo:   n.Repository.FullName,
		})
	}
	return items, nil
}

// MarkRead marks one notification thread as read upstream.
func (c *Client) MarkRead(ctx context.Context, threadID string) error {
	req, err := c.newRequest(ctx, http.MethodPatch, "/notifications/threads/"+threadID, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("feed mark read: %w", err)
	}
	defer resp.Body.Close()

	// GitHub answers 205 Reset Content on success; 404 means the thread
	// is already gone upstream, which is as done as it gets.
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return statusError("mark read", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.Token))
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return req, nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
