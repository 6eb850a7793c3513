package http

import (
	"encoding/json"
	"net/http"

	pnet "turnstiled/internal/platform/net"
)

// WriteJSON encodes v with status; encode errors are dropped since the header is already out
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError writes err as an error envelope
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	status, env := pnet.Failure(err, pnet.RequestID(r.Context()))
	WriteJSON(w, status, env)
}

// Response is what a return-style handler hands back. An error Body becomes an error
// envelope with the status its code maps to; anything else is wrapped as data
type Response struct {
	Status int
	Body   any
	Header http.Header
}

// OK is a 200 with data
func OK(data any) Response { return Response{Status: http.StatusOK, Body: data} }

// Created is a 201 with data
func Created(data any) Response { return Response{Status: http.StatusCreated, Body: data} }

// NoContent is a bodyless 204
func NoContent() Response { return Response{Status: http.StatusNoContent} }

// Error defers the status to err's code
func Error(err error) Response { return Response{Body: err} }

// Handle turns a return-style handler into a Handler
func Handle(fn func(*http.Request) Response) Handler {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(r).writeTo(w, r)
	}
}

func (resp Response) writeTo(w http.ResponseWriter, r *http.Request) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if err, ok := resp.Body.(error); ok && err != nil {
		RespondError(w, r, err)
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	WriteJSON(w, status, pnet.Success(status, resp.Body, pnet.RequestID(r.Context())))
}
