package uploadhttp

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		msg := "%s %s %d %s in %s [%s]"
		args := []any{r.Method, r.URL.Path, status,
			humanize.IBytes(uint64(ww.BytesWritten())), time.Since(start).Round(time.Microsecond),
			middleware.GetReqID(r.Context())}

		if status >= http.StatusInternalServerError {
			s.log.Warn(msg, args...)
		} else {
			s.log.Debug(msg, args...)
		}
	})
}
