package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"warden/pkg/bus"
	"warden/pkg/channel"
	"warden/pkg/config"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	providerCheckInterval = 30 * time.Second
)

// healthChecker is implemented by responders that talk to a remote backend.
type healthChecker interface {
	Health(ctx context.Context) error
}

type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	runtime  *Runtime
	provider healthChecker
	channels []channel.Adapter

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
	channelStates    map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	Plugins          int                     `json:"plugins"`
	ProviderLastOKAt string                  `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string                  `json:"provider_last_error,omitempty"`
	Channels         map[string]channelState `json:"channels"`
}

type pluginsResponse struct {
	Dir      string   `json:"dir"`
	LoadedAt string   `json:"loaded_at,omitempty"`
	Plugins  []string `json:"plugins"`
	Skipped  []string `json:"skipped,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	DirError string   `json:"dir_error,omitempty"`
}

func NewService(cfg *config.Config, runtime *Runtime, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if runtime == nil {
		return nil, errors.New("runtime is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	checker, _ := runtime.Responder.(healthChecker)

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		runtime:       runtime,
		provider:      checker,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	go bus.ObserveEvents(ctx, s.runtime.Bus, s.log)

	if err := s.checkProviderHealth(ctx); err != nil {
		s.log.Warn("Sheng provider unhealthy, chat replies may fail", "error", err)
	}

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	if s.provider != nil {
		go func() {
			ticker := time.NewTicker(providerCheckInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_ = s.checkProviderHealth(ctx)
				}
			}
		}()
	}

	go func() {
		if err := s.runtime.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("Plugin watcher stopped", "dir", s.runtime.Registry.Dir(), "error", err)
		}
	}()

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		handler, err := s.runtime.Attach(adapter)
		if err != nil {
			return err
		}

		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, handler)
			s.runtime.Detach(adapter.Name())
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/plugins", s.handlePlugins)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	report := s.runtime.Registry.LastReport()

	payload := pluginsResponse{
		Dir:      report.Dir,
		Plugins:  s.runtime.Registry.Names(),
		Skipped:  report.Skipped,
		DirError: errorString(report.DirErr),
	}
	if !report.LoadedAt.IsZero() {
		payload.LoadedAt = report.LoadedAt.UTC().Format(time.RFC3339)
	}
	for _, err := range report.Errors {
		payload.Errors = append(payload.Errors, err.Error())
	}

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	plugins := 0
	if s.runtime != nil {
		plugins = len(s.runtime.Registry.Names())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		Plugins:          plugins,
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  s.providerLastErr,
		Channels:         channels,
	}
}

// isReady reports whether at least one channel is running. Provider health
// only affects sheng chat replies and is reported, not gated on.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}

	if err := s.provider.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
