package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/models"
)

// FeedClient wraps the live telemetry feed that supplies asset snapshots.
type FeedClient struct {
	baseURL      string
	snapshotPath string
	httpClient   *http.Client
}

// NewFeedClient constructs a client targeting the configured feed instance.
func NewFeedClient(baseURL, snapshotPath string, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FeedClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		snapshotPath: snapshotPath,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// FetchSnapshot retrieves the current per-asset telemetry records. The feed
// is a hard dependency: any failure here fails the whole regeneration.
func (c *FeedClient) FetchSnapshot(ctx context.Context) ([]models.AssetSnapshot, error) {
	if c == nil {
		return nil, fmt.Errorf("feed client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("feed base URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.snapshotURL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	var response struct {
		Assets []struct {
			ID       string   `json:"id"`
			Name     string   `json:"name"`
			Route    string   `json:"route"`
			Operator string   `json:"operator"`
			SpeedKmh *float64 `json:"speed_kmh"`
			Status   string   `json:"status"`
			Position struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"position"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	assets := make([]models.AssetSnapshot, 0, len(response.Assets))
	for _, rec := range response.Assets {
		assets = append(assets, models.AssetSnapshot{
			ID:       rec.ID,
			Name:     rec.Name,
			Route:    rec.Route,
			Operator: rec.Operator,
			SpeedKmh: rec.SpeedKmh,
			Status:   models.ParseAssetStatus(rec.Status),
			Position: models.Position{
				Latitude:  rec.Position.Latitude,
				Longitude: rec.Position.Longitude,
			},
		})
	}
	return assets, nil
}

func (c *FeedClient) snapshotURL() string {
	cleaned := "/" + strings.TrimLeft(c.snapshotPath, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}
