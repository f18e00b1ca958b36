package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/models"
)

// PrecedentRepo provides read and write access to the resolved-incident
// corpus stored in a Weaviate-compatible similarity index.
type PrecedentRepo struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewPrecedentRepo constructs a similarity index client.
func NewPrecedentRepo(endpoint, apiKey string, timeout time.Duration) *PrecedentRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PrecedentRepo{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Query returns up to k nearest precedents for the vector, ordered descending
// by score. Errors propagate so the resolver can fall back to templates.
func (r *PrecedentRepo) Query(ctx context.Context, vector []float32, k int) ([]models.VectorMatch, error) {
	if r == nil {
		return nil, fmt.Errorf("precedent repo not initialised")
	}
	if r.endpoint == "" {
		return nil, fmt.Errorf("precedent index endpoint not configured")
	}
	if k <= 0 {
		k = 3
	}

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return nil, err
	}

	gql := map[string]interface{}{
		"query": fmt.Sprintf(`{
          Get {
            ResolvedIncident(
              limit: %d
              nearVector: {vector: %s}
            ) {
              incidentId
              resolution
              _additional { certainty }
            }
          }
        }`, k, vectorJSON),
	}

	payload, err := json.Marshal(gql)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("precedent query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("precedent index returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var response struct {
		Data struct {
			Get struct {
				ResolvedIncident []struct {
					IncidentID string `json:"incidentId"`
					Resolution string `json:"resolution"`
					Additional struct {
						Certainty float64 `json:"certainty"`
					} `json:"_additional"`
				} `json:"ResolvedIncident"`
			} `json:"Get"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode precedent response: %w", err)
	}

	matches := make([]models.VectorMatch, 0, len(response.Data.Get.ResolvedIncident))
	for _, rec := range response.Data.Get.ResolvedIncident {
		matches = append(matches, models.VectorMatch{
			Score:      rec.Additional.Certainty,
			Resolution: rec.Resolution,
			IncidentID: rec.IncidentID,
		})
	}

	// The index already ranks by distance; enforce the descending-score
	// invariant regardless.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// StoreResolution persists a similarity-resolved alert so future incidents
// can match against it.
func (r *PrecedentRepo) StoreResolution(ctx context.Context, alert models.ResolvedAlert) error {
	if r == nil {
		return fmt.Errorf("precedent repo not initialised")
	}
	if r.endpoint == "" {
		return nil
	}

	payload := map[string]interface{}{
		"class": "ResolvedIncident",
		"properties": map[string]interface{}{
			"incidentId":  alert.ID,
			"conflict":    string(alert.Type),
			"severity":    string(alert.Severity),
			"description": alert.Description,
			"resolution":  alert.Resolution,
			"resolvedAt":  alert.DetectedAt.UTC().Format(time.RFC3339),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/objects", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store resolution failed: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
