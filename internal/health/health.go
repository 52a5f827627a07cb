// Package health отдаёт состояние зависимостей сервиса: /healthz, /livez, /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: общий статус равен худшему из проверок.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент и должен уважать ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

// CheckerFunc позволяет передать функцию как Checker.
type CheckerFunc func(ctx context.Context) Check

func (f CheckerFunc) Check(ctx context.Context) Check { return f(ctx) }

type Handler struct {
	mu       sync.RWMutex
	names    []string
	checkers map[string]Checker
	timeout  time.Duration

	version string
	started time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		timeout:  defaultCheckTimeout,
		version:  version,
		started:  time.Now(),
	}
}

// SetCheckTimeout ограничивает время всего прогона проверок; timeout<=0 игнорируется.
func (h *Handler) SetCheckTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = timeout
}

// RegisterChecker добавляет проверку; повторное имя заменяет прежнюю.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.checkers[name]; !ok {
		h.names = append(h.names, name)
	}
	h.checkers[name] = checker
}

// Evaluate запускает проверки параллельно под общим таймаутом.
func (h *Handler) Evaluate(ctx context.Context) (Status, map[string]Check) {
	h.mu.RLock()
	names := slices.Clone(h.names)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = h.checkers[name]
	}
	timeout := h.timeout
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]Check, len(checkers))
	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			results[i] = checker.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	status := StatusHealthy
	checks := make(map[string]Check, len(results))
	for i, check := range results {
		checks[names[i]] = check
		if check.Status.severity() > status.severity() {
			status = check.Status
		}
	}
	return status, checks
}

// ServeHTTP отвечает на /healthz. degraded остаётся 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, checks := h.Evaluate(r.Context())
	writeJSON(w, httpCode(status), Response{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}

// ReadinessHandler отвечает 503 со списком упавших компонентов, пока есть unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status, checks := h.Evaluate(r.Context())
	if status != StatusUnhealthy {
		writeText(w, http.StatusOK, "ready")
		return
	}

	var down []string
	for name, check := range checks {
		if check.Status == StatusUnhealthy {
			down = append(down, name)
		}
	}
	slices.Sort(down)
	writeText(w, http.StatusServiceUnavailable, "not ready: "+strings.Join(down, ","))
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func httpCode(status Status) int {
	if status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// NewPingChecker: ошибка ping делает компонент unhealthy.
func NewPingChecker(name string, ping func(ctx context.Context) error) Checker {
	return pingChecker(name, ping, StatusUnhealthy)
}

// NewOptionalPingChecker: ошибка ping даёт только degraded, сервис работает без компонента.
func NewOptionalPingChecker(name string, ping func(ctx context.Context) error) Checker {
	return pingChecker(name, ping, StatusDegraded)
}

func pingChecker(name string, ping func(ctx context.Context) error, onError Status) Checker {
	return CheckerFunc(func(ctx context.Context) Check {
		started := time.Now()
		err := ping(ctx)
		check := Check{Name: name, Status: StatusHealthy, DurationMs: time.Since(started).Milliseconds()}
		if err != nil {
			check.Status, check.Message = onError, err.Error()
		}
		return check
	})
}

// NewStateChecker опрашивает мгновенное состояние (например, circuit breaker).
// probe=false даёт degraded.
func NewStateChecker(name string, probe func() (ok bool, message string)) Checker {
	return CheckerFunc(func(context.Context) Check {
		ok, message := probe()
		check := Check{Name: name, Status: StatusHealthy, Message: message}
		if !ok {
			check.Status = StatusDegraded
		}
		return check
	})
}
