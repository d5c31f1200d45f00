package middleware

import (
	"net/http"
	"strconv"
)

// CacheControl marks successful GET and HEAD responses cacheable by the
// client for maxAge seconds. Other responses of those methods, and every
// response when maxAge is not positive, get "no-store".
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	cacheable := "private, max-age=" + strconv.Itoa(maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if maxAge <= 0 {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(&cacheWriter{ResponseWriter: w, value: cacheable}, r)
		})
	}
}

// cacheWriter decides the Cache-Control value once the status is known.
type cacheWriter struct {
	http.ResponseWriter
	value   string
	decided bool
}

func (cw *cacheWriter) WriteHeader(code int) {
	if !cw.decided {
		cw.decided = true
		value := "no-store"
		if code >= 200 && code < 300 {
			value = cw.value
		}
		cw.Header().Set("Cache-Control", value)
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cacheWriter) Write(b []byte) (int, error) {
	if !cw.decided {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

func (cw *cacheWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
