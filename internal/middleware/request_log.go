package middleware

import (
	"net/http"
	"time"

	"github.com/tavernlink/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, статус и время выполнения (асинхронно, не блокирует).
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := wrapWriter(w)
		next.ServeHTTP(wrap, r)
		d := time.Since(start)
		if wrap.status >= http.StatusInternalServerError {
			logger.Errorf("http %s %s %d %v", r.Method, r.URL.Path, wrap.status, d)
			return
		}
		logger.Debugf("http %s %s %d %v", r.Method, r.URL.Path, wrap.status, d)
	})
}
