package repo

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/models"
)

func TestFetchSnapshotDecodesAssets(t *testing.T) {
	client := NewFeedClient("http://feed.local", "/v1/fleet/snapshot", time.Second)
	var gotPath string
	client.httpClient = stubClient(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		return jsonResponse(http.StatusOK, `{
			"assets": [
				{"id": "a1", "name": "Unit 1", "route": "R1", "operator": "North",
				 "speed_kmh": 42.5, "status": "delayed",
				 "position": {"latitude": 48.85, "longitude": 2.35}},
				{"id": "a2", "name": "Unit 2", "route": "R2", "operator": "South",
				 "status": "on-time",
				 "position": {"latitude": 50.1, "longitude": 3.2}}
			]
		}`), nil
	})

	assets, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if gotPath != "/v1/fleet/snapshot" {
		t.Fatalf("request path = %q", gotPath)
	}
	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(assets))
	}

	first := assets[0]
	if first.ID != "a1" || first.Name != "Unit 1" || first.Status != models.StatusDelayed {
		t.Fatalf("unexpected first asset: %+v", first)
	}
	if first.SpeedKmh == nil || *first.SpeedKmh != 42.5 {
		t.Fatalf("speed not decoded: %+v", first.SpeedKmh)
	}
	if first.Position.Latitude != 48.85 || first.Position.Longitude != 2.35 {
		t.Fatalf("position not decoded: %+v", first.Position)
	}
	if assets[1].SpeedKmh != nil {
		t.Fatalf("absent speed must decode to nil, got %v", *assets[1].SpeedKmh)
	}
}

func TestFetchSnapshotUnknownStatus(t *testing.T) {
	client := NewFeedClient("http://feed.local", "/snapshot", time.Second)
	client.httpClient = stubClient(func(_ *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"assets": [{"id": "a1", "name": "Unit 1", "status": "teleporting"}]}`), nil
	})

	assets, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if assets[0].Status != models.StatusUnknown {
		t.Fatalf("status = %q, want unknown", assets[0].Status)
	}
}

func TestFetchSnapshotNonOKStatus(t *testing.T) {
	client := NewFeedClient("http://feed.local", "/snapshot", time.Second)
	client.httpClient = stubClient(func(_ *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `{"error": "upstream"}`), nil
	})

	if _, err := client.FetchSnapshot(context.Background()); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestFetchSnapshotTransportError(t *testing.T) {
	client := NewFeedClient("http://feed.local", "/snapshot", time.Second)
	dialErr := errors.New("connection refused")
	client.httpClient = stubClient(func(_ *http.Request) (*http.Response, error) {
		return nil, dialErr
	})

	if _, err := client.FetchSnapshot(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("err = %v, want wrapped %v", err, dialErr)
	}
}

func TestFetchSnapshotMissingBaseURL(t *testing.T) {
	client := NewFeedClient("", "/snapshot", time.Second)
	if _, err := client.FetchSnapshot(context.Background()); err == nil {
		t.Fatalf("expected configuration error")
	}
}
