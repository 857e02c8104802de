package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/gridmesh/csip-core/internal/sep2"
)

// OptInHeaderCSIPAusV11a marks a client that speaks the v1.1a namespace
// natively. Requests without it get the legacy v1.1 namespace translated
// in both directions.
const OptInHeaderCSIPAusV11a = "X-Csipaus-Ns-V11a"

// CSIPV11aNamespace bridges the CSIP-AUS namespace revision: the server
// speaks v1.1a (https scheme) internally; clients that have not sent the
// opt-in header get v1.1 (http scheme) on the wire, requests and
// responses both. Bodies are buffered, so this sits only on the sep2
// routes where payloads are small.
func CSIPV11aNamespace() func(next http.Handler) http.Handler {
	v11 := []byte(sep2.NamespaceCSIPAusV11)
	v11a := []byte(sep2.NamespaceCSIPAus)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(OptInHeaderCSIPAusV11a) != "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Body != nil && r.ContentLength != 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, "malformed request body", http.StatusBadRequest)
					return
				}
				r.Body.Close()
				body = bytes.ReplaceAll(body, v11, v11a)
				r.Body = io.NopCloser(bytes.NewReader(body))
				r.ContentLength = int64(len(body))
			}

			buf := &namespaceRewriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(buf, r)

			out := bytes.ReplaceAll(buf.body.Bytes(), v11a, v11)
			w.Header().Set("Content-Length", strconv.Itoa(len(out)))
			w.WriteHeader(buf.status)
			w.Write(out)
		})
	}
}

// namespaceRewriter buffers the response so the namespace swap can run
// over the complete body.
type namespaceRewriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *namespaceRewriter) WriteHeader(code int) {
	w.status = code
}

func (w *namespaceRewriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}
