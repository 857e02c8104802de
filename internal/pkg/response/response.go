// Package response provides body-writing helpers for the sep2 and admin
// HTTP surfaces.
package response

import (
	"encoding/json"
	"encoding/xml"
	"net/http"

	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/sep2"
)

// XML writes a sep2 XML response with the given status code.
func XML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", sep2.ContentType)
	w.WriteHeader(status)
	body, err := xml.Marshal(v)
	if err != nil {
		// Headers already flushed; nothing sensible left to write.
		return
	}
	w.Write([]byte(xml.Header))
	w.Write(body)
}

// XMLOK writes a 200 OK sep2 response.
func XMLOK(w http.ResponseWriter, v any) {
	XML(w, http.StatusOK, v)
}

// XMLCreated writes a 201 Created with a Location header and no body, the
// sep2 convention for resource creation.
func XMLCreated(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusCreated)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// XMLError translates a service error to its HTTP status and a sep2
// <Error> body carrying the reason code. Internal messages never leak.
func XMLError(w http.ResponseWriter, err error) {
	apiErr := apierrors.AsAPIError(err)
	XML(w, apiErr.StatusCode, &sep2.Error{ReasonCode: apiErr.ReasonCode})
}

// Envelope is the admin-surface JSON response shape.
type Envelope struct {
	Data  any `json:"data,omitempty"`
	Error any `json:"error,omitempty"`
}

// JSON writes an admin JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{Data: data}); err != nil {
		http.Error(w, `{"error":{"code":"internal_error","message":"Failed to encode response"}}`, http.StatusInternalServerError)
	}
}

// OK writes a 200 OK admin response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 Created admin response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// JSONError writes an admin error response.
func JSONError(w http.ResponseWriter, err error) {
	apiErr := apierrors.AsAPIError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	json.NewEncoder(w).Encode(Envelope{Error: apiErr})
}
