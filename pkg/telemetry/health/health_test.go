package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deepstore-hq/deepstore/pkg/history"
)

func TestRegisterAndList(t *testing.T) {
	c := New(0)
	c.RegisterCheck("b", func(context.Context) error { return nil })
	c.RegisterCritical("a", func(context.Context) error { return nil })

	if got := c.ListChecks(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("ListChecks() = %v", got)
	}

	c.UnregisterCheck("a")
	if got := c.ListChecks(); len(got) != 1 {
		t.Errorf("ListChecks() after unregister = %v", got)
	}
}

func TestCheckReadiness(t *testing.T) {
	failing := func(context.Context) error { return errors.New("boom") }
	healthy := func(context.Context) error { return nil }

	tests := []struct {
		name  string
		setup func(c *Checker)
		want  string
	}{
		{name: "no checks", setup: func(*Checker) {}, want: StatusReady},
		{name: "all healthy", setup: func(c *Checker) {
			c.RegisterCheck("a", healthy)
			c.RegisterCritical("b", healthy)
		}, want: StatusReady},
		{name: "non-critical failing", setup: func(c *Checker) {
			c.RegisterCheck("a", failing)
			c.RegisterCritical("b", healthy)
		}, want: StatusDegraded},
		{name: "critical failing", setup: func(c *Checker) {
			c.RegisterCheck("a", failing)
			c.RegisterCritical("b", failing)
		}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			tt.setup(c)
			if got := c.CheckReadiness(context.Background()); got.Status != tt.want {
				t.Errorf("CheckReadiness() = %s, want %s (%+v)", got.Status, tt.want, got.Checks)
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	got := c.CheckReadiness(context.Background())
	if got.Checks["slow"].Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check = %+v", got.Checks["slow"])
	}
}

type fakeHistory struct {
	runs []history.Run
}

func (f *fakeHistory) Last(_ context.Context, status string) (*history.Run, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if status == "" || f.runs[i].Status == status {
			return &f.runs[i], nil
		}
	}
	return nil, history.ErrNotFound
}

func TestLastRunCheck(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		runs    []history.Run
		wantErr bool
	}{
		{name: "empty history", runs: nil},
		{name: "recent success", runs: []history.Run{{ID: "1", Status: "success", FinishedAt: now.Add(-time.Hour)}}},
		{name: "last failed", runs: []history.Run{
			{ID: "1", Status: "success", FinishedAt: now.Add(-2 * time.Hour)},
			{ID: "2", Status: "failed", FinishedAt: now.Add(-time.Hour), Error: "upload failed"},
		}, wantErr: true},
		{name: "stale success", runs: []history.Run{{ID: "1", Status: "success", FinishedAt: now.Add(-72 * time.Hour)}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := LastRunCheck(&fakeHistory{runs: tt.runs}, 26*time.Hour)
			if err := check(context.Background()); (err != nil) != tt.wantErr {
				t.Errorf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCritical("history", func(context.Context) error { return errors.New("database is locked") })

	mux := http.NewServeMux()
	c.Register(mux, "1.2.3", "abc", "2024-03-01")

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodHead, "/healthz", http.StatusOK},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{http.MethodGet, "/version", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil || info.Version != "1.2.3" {
		t.Errorf("version = %+v, %v", info, err)
	}
}
