package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestServerEndpoints(t *testing.T) {
	srv := NewServer("127.0.0.1:0", zerolog.Nop())

	SessionsStarted.WithLabelValues("duo", "limited").Inc()
	ObserveRemote("extend", time.Now(), errors.New("timeout"))

	tests := []struct {
		path string
		want string
	}{
		{"/health", "OK"},
		{"/metrics", "gamehall_sessions_started_total"},
		{"/metrics", `gamehall_remote_request_duration_seconds_count{op="extend",outcome="error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Fatalf("expected body to contain %q", tt.want)
			}
		})
	}
}
