package audittrail

import (
	"bytes"
	"io"
	"net/http"

	"veritrail/internal/transport/middleware/auth"
)

// captureLimit bounds how much of a request or response body is retained
// for synthesis. Bodies beyond the limit lose field detail, not the
// entry itself.
const captureLimit = 64 << 10

// Middleware records an audit entry for every successful mutating
// request. It captures the request body before the handler runs and tees
// the response through a recording writer, then hands the completed pair
// to the recorder once the status is known. The handler never authors
// its own log line and never learns recording exists.
func Middleware(recorder *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !recorder.Eligible(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			var reqBody []byte
			if r.Body != nil {
				reqBody, _ = io.ReadAll(io.LimitReader(r.Body, captureLimit))
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(reqBody), r.Body))
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			actor := ActorFromIdentity(auth.IdentityFromContext(r.Context()))
			recorder.RecordRequest(r.Context(), actor, Request{
				Method:       r.Method,
				Path:         r.URL.Path,
				Status:       capture.status,
				RequestBody:  reqBody,
				ResponseBody: capture.body.Bytes(),
			})
		})
	}
}

// captureWriter tees the response body, up to the capture limit, while
// passing everything through to the client untouched.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if remaining := captureLimit - w.body.Len(); remaining > 0 {
		if len(p) <= remaining {
			w.body.Write(p)
		} else {
			w.body.Write(p[:remaining])
		}
	}
	return w.ResponseWriter.Write(p)
}
