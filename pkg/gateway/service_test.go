package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"warden/pkg/config"
)

type stubChecker struct{ err error }

func (s stubChecker) Health(context.Context) error { return s.err }

func TestIsReady(t *testing.T) {
	t.Parallel()

	svc := &Service{channelStates: map[string]channelState{"telegram": {}}}
	if svc.isReady() {
		t.Fatal("expected not ready without a running channel")
	}

	svc.channelStates["telegram"] = channelState{Running: true}
	if !svc.isReady() {
		t.Fatal("expected ready with a running channel")
	}

	svc.providerLastErr = "boom"
	if !svc.isReady() {
		t.Fatal("provider errors must not gate readiness")
	}
}

func TestCheckProviderHealthRecordsState(t *testing.T) {
	t.Parallel()

	svc := &Service{provider: stubChecker{err: errors.New("offline")}, channelStates: map[string]channelState{}}
	if err := svc.checkProviderHealth(context.Background()); err == nil {
		t.Fatal("expected provider error")
	}
	if got := svc.currentStatus("ok").ProviderLastErr; got != "offline" {
		t.Fatalf("ProviderLastErr = %q, want offline", got)
	}

	svc.provider = stubChecker{}
	if err := svc.checkProviderHealth(context.Background()); err != nil {
		t.Fatalf("checkProviderHealth() error = %v", err)
	}
	status := svc.currentStatus("ok")
	if status.ProviderLastErr != "" || status.ProviderLastOKAt == "" {
		t.Fatalf("status = %+v, want healthy provider", status)
	}
}

func TestCheckProviderHealthWithoutProvider(t *testing.T) {
	t.Parallel()

	svc := &Service{channelStates: map[string]channelState{}}
	if err := svc.checkProviderHealth(context.Background()); err != nil {
		t.Fatalf("checkProviderHealth() error = %v", err)
	}
}

func TestHandleReadyReportsUnavailable(t *testing.T) {
	t.Parallel()

	svc := &Service{channelStates: map[string]channelState{"console": {Error: "closed"}}}
	recorder := httptest.NewRecorder()
	svc.handleReady(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
	if body := recorder.Body.String(); !strings.Contains(body, `"not_ready"`) || !strings.Contains(body, `"closed"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestNewServiceValidatesInputs(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error without config")
	}
	cfg := config.Default()
	if _, err := NewService(cfg, nil, nil, nil); err == nil {
		t.Fatal("expected error without runtime")
	}
	if _, err := NewService(cfg, &Runtime{}, nil, nil); err == nil {
		t.Fatal("expected error without adapters")
	}
}
