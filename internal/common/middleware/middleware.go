package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hamedsh/walletledger/internal/common/logger"
)

// statusRecorder captures the response for logging without interfering with
// the handler's writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Logging logs each request and its response. Request bodies are logged for
// mutating verbs, response bodies only for JSON payloads.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var requestBody string
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				if r.Body != nil {
					data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
					if err == nil {
						requestBody = string(data)
						r.Body = io.NopCloser(bytes.NewReader(data))
					}
				}
			}

			log.Infof("API Request: %s %s Body: %s", r.Method, r.URL.RequestURI(), requestBody)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			responseBody := ""
			if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
				responseBody = rec.body.String()
			}

			log.Infof("API Response: %s %s Status: %d Duration: %s Content: %s",
				r.Method, r.URL.RequestURI(), rec.status, time.Since(start), responseBody)
		})
	}
}

// Recovery converts handler panics into 500 responses.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorf("Panic in %s %s: %v", r.Method, r.URL.Path, rec)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows browser clients to reach the API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
