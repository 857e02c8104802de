// Package handler provides the HTTP handlers for the sep2 device surface
// and the JSON admin API.
package handler

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/scope"
)

// maxBodyBytes bounds request bodies. sep2 payloads are small; telemetry
// batches are the largest legitimate body.
const maxBodyBytes = 1 << 20

// defaultPageLimit caps list responses when the client sends no limit.
const defaultPageLimit = 100

// pagination carries the sep2 list query parameters: s (start index),
// l (limit) and a (changed-after watermark, epoch seconds).
type pagination struct {
	Start int
	Limit int
	After time.Time
}

func parsePagination(r *http.Request) pagination {
	p := pagination{Limit: defaultPageLimit, After: time.Unix(0, 0)}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("s")); err == nil && v > 0 {
		p.Start = v
	}
	if v, err := strconv.Atoi(q.Get("l")); err == nil && v > 0 && v <= defaultPageLimit {
		p.Limit = v
	}
	if v, err := strconv.ParseInt(q.Get("a"), 10, 64); err == nil && v > 0 {
		p.After = time.Unix(v, 0)
	}
	return p
}

// urlID parses a numeric chi path parameter.
func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierrors.ErrNotFound
	}
	return id, nil
}

// urlInt32 parses a numeric chi path parameter into an int32.
func urlInt32(r *http.Request, name string) (int32, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 32)
	if err != nil || id <= 0 {
		return 0, apierrors.ErrNotFound
	}
	return int32(id), nil
}

// decodeXML decodes a size-capped sep2 request body.
func decodeXML(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := xml.NewDecoder(body).Decode(v); err != nil {
		return apierrors.ErrBadRequest.WithMessage("malformed XML body")
	}
	return nil
}

// requestScope pulls the certificate-derived scope off the context. The
// auth middleware guarantees it is present on sep2 routes.
func requestScope(r *http.Request) (*scope.Scope, error) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		return nil, apierrors.ErrUnauthorized
	}
	return sc, nil
}

func intPtr(v int) *int { return &v }
