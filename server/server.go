// Package server contains the plumbing shared by all HTTP interfaces:
// typed JSON payloads, route tables, and the goji mux builder.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"

	"goji.io"
)

// HumanPayload is a struct containing the basic types middleware may work with
type HumanPayload struct {
	// T holds the type of data actually contained
	T types.BasicKind

	// Bool holds a boolean
	Bool bool

	// Int holds an int
	Int int

	// Float holds a float64
	Float float64

	// String holds a string
	String string

	// Buffer holds raw bytes
	Buffer []byte
}

// EncodeAndRespond writes the payload to w as JSON with the key named for
// its type, e.g. {"f64": 1.5}
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var obj interface{}
	switch hp.T {
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.String:
		obj = StrT{Str: hp.String}
	case types.UntypedNil:
		w.WriteHeader(http.StatusOK)
		return
	default:
		http.Error(w, fmt.Sprintf("unhandled payload type %v", hp.T), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		log.Println("error encoding payload to json:", err)
	}
}

// StrT is a struct with a single Str field, used for JSON IO
type StrT struct {
	Str string `json:"str"`
}

// FloatT is a struct with a single F64 field, used for JSON IO
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single Int field, used for JSON IO
type IntT struct {
	Int int `json:"int"`
}

// BoolT is a struct with a single Bool field, used for JSON IO
type BoolT struct {
	Bool bool `json:"bool"`
}

// RouteTable maps goji patterns to handler funcs
type RouteTable map[goji.Pattern]http.HandlerFunc

// Endpoints returns the endpoint strings in the route table
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, fmt.Sprint(k))
	}
	return routes
}

// Bind attaches every route in the table to mux
func (rt RouteTable) Bind(mux *goji.Mux) {
	for pattern, handler := range rt {
		mux.HandleFunc(pattern, handler)
	}
}

// HTTPer is a type which exposes its route table for extension and can
// produce an http.Handler serving it
type HTTPer interface {
	RT() RouteTable
}

// Build assembles the route table of an HTTPer into a goji mux.  The mux
// routes against the full request path; strip any mount prefix before
// handing requests to it.
func Build(h HTTPer) *goji.Mux {
	mux := goji.NewMux()
	h.RT().Bind(mux)
	return mux
}
