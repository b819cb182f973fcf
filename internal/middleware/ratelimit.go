package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const projectsPrefix = "/api/v1/projects/"

type clientLimiter struct {
	general  *rate.Limiter
	auth     *rate.Limiter
	destroy  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits requests per client IP. Login and project
// destruction each get their own tighter budget. A non-positive general limit
// disables it.
type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int
	destroyRPM int
	mu         sync.Mutex
	clients    map[string]*clientLimiter
}

func NewRateLimitMiddleware(generalRPM int, authRPM int, destroyRPM int) *RateLimitMiddleware {
	if authRPM <= 0 {
		authRPM = 10
	}
	if destroyRPM <= 0 {
		destroyRPM = 6
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		destroyRPM: destroyRPM,
		clients:    map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		limiter := m.getLimiter(clientIP)

		target := limiter.general
		switch {
		case strings.HasPrefix(strings.ToLower(r.URL.Path), "/api/v1/auth"):
			target = limiter.auth
		case isDestroyRequest(r):
			target = limiter.destroy
		}

		if target != nil && !target.Allow() {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter
	}

	var general *rate.Limiter
	if m.generalRPM > 0 {
		general = perMinute(m.generalRPM)
	}
	created := &clientLimiter{
		general:  general,
		auth:     perMinute(m.authRPM),
		destroy:  perMinute(m.destroyRPM),
		lastSeen: time.Now(),
	}
	m.clients[clientIP] = created
	m.gcLocked()

	return created
}

func perMinute(rpm int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
}

// isDestroyRequest matches DELETE /projects/{id} and POST /projects/{id}/destroy.
func isDestroyRequest(r *http.Request) bool {
	rest, ok := strings.CutPrefix(r.URL.Path, projectsPrefix)
	if !ok || rest == "" {
		return false
	}

	id, action, nested := strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if id == "" {
		return false
	}
	switch r.Method {
	case http.MethodDelete:
		return !nested
	case http.MethodPost:
		return action == "destroy"
	}
	return false
}

func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

func extractClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
