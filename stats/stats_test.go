package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dxlistener/listener"
	"dxlistener/spot"
)

func TestTrackerCountsPerClusterAndMode(t *testing.T) {
	tr := NewTracker(nil)
	cw := spot.NewSpot("W1XYZ", "K1ABC", 14025, "CW")
	ft := spot.NewSpot("W1XYZ", "K1ABC", 14074, "FT8")

	tr.LineReceived("rbn")
	tr.SpotDelivered("rbn", cw)
	tr.SpotDelivered("rbn", ft)
	tr.SpotDelivered("local", cw)
	tr.ParseFailed("local", "garbage")
	tr.PhaseChanged("rbn", listener.PhaseStreaming)

	if tr.GetTotal() != 3 {
		t.Fatalf("expected total 3, got %d", tr.GetTotal())
	}
	if got := tr.ClusterCounts()["rbn"]; got != 2 {
		t.Fatalf("expected 2 rbn spots, got %d", got)
	}
	if got := tr.ModeCounts()["CW"]; got != 2 {
		t.Fatalf("expected 2 CW spots, got %d", got)
	}
	if got := tr.ParseFailures()["local"]; got != 1 {
		t.Fatalf("expected 1 parse failure, got %d", got)
	}
	if p, ok := tr.Phase("rbn"); !ok || p != listener.PhaseStreaming {
		t.Fatalf("unexpected phase %v %v", p, ok)
	}
	if tr.LastSpot().IsZero() {
		t.Fatalf("expected last spot time to be set")
	}
	lines := tr.SnapshotLines()
	if lines[0] != "Spots by cluster: local=1, rbn=2" {
		t.Fatalf("unexpected snapshot line %q", lines[0])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetrics("dxlisten")
	tr := NewTracker(m)
	tr.SpotDelivered("rbn", spot.NewSpot("W1XYZ", "K1ABC", 14025, "CW"))
	tr.PhaseChanged("rbn", listener.PhaseStreaming)
	tr.Reconnected("rbn")

	srv := httptest.NewServer(Handler(m, tr))
	defer srv.Close()

	body := get(t, srv.URL+"/metrics")
	for _, want := range []string{
		`dxlisten_spots_delivered_total{cluster="rbn",mode="CW"} 1`,
		`dxlisten_cluster_streaming{cluster="rbn"} 1`,
		`dxlisten_reconnects_total{cluster="rbn"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
	if body := get(t, srv.URL+"/api/stats"); !strings.Contains(body, `"total":1`) {
		t.Fatalf("unexpected stats body %s", body)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}
