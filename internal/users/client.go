package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chat-realtime/internal/models"
)

var ErrNotFound = errors.New("user not found")

const (
	maxResponseBytes = 1 << 20
	bulkConcurrency  = 8
)

// Client reads profiles from the user service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient returns nil when baseURL is empty.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
}

// GetUser retrieves one profile. authorization is forwarded as-is so the user
// service applies the caller's own permissions.
func (u *Client) GetUser(ctx context.Context, userID int, authorization string) (models.UserProfile, error) {
	url := fmt.Sprintf("%s/api/v1/user/getUser/%d", u.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.UserProfile{}, err
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.UserProfile{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return models.UserProfile{}, fmt.Errorf("get user %d: status %d", userID, resp.StatusCode)
	}

	var body struct {
		User *models.UserProfile `json:"user"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return models.UserProfile{}, fmt.Errorf("decode user %d: %w", userID, err)
	}
	if body.User == nil || body.User.ID == 0 {
		return models.UserProfile{}, ErrNotFound
	}
	return *body.User, nil
}

// BulkUsers fetches several profiles concurrently. Ids that fail are left out
// of the result; the error is set only when ctx ends first.
func (u *Client) BulkUsers(ctx context.Context, ids []int, authorization string) (map[int]models.UserProfile, error) {
	ids = lo.Uniq(ids)
	out := make(map[int]models.UserProfile, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			profile, err := u.GetUser(gctx, id, authorization)
			if err != nil {
				u.log.Warn("user lookup failed", zap.Int("user_id", id), zap.Error(err))
				return nil
			}
			mu.Lock()
			out[id] = profile
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}
