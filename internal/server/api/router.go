package api

import (
	"log/slog"
	"strings"
)

// Request carries the route parameters and the raw payload following the
// path in the command line.
type Request struct {
	Params  map[string]string
	Payload string
}

// Response holds the JSON string returned to the client.
type Response struct {
	JSON string
}

// HandlerFunc processes one request. The logger is connection-scoped,
// enriched with the remote address by the server.
type HandlerFunc func(req *Request, res *Response, logger *slog.Logger) error

// route is one registered pattern, pre-split into segments. A segment of
// the form {name} captures the corresponding request segment.
type route struct {
	segments []string
	handler  HandlerFunc
}

func paramName(segment string) (string, bool) {
	if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}

// Router matches slash-separated paths against registered patterns.
// Matching is case-insensitive; captured parameter values are lowercased
// with the rest of the path.
type Router struct {
	routes []route
}

func NewRouter() *Router { return &Router{} }

// Register adds a handler for a pattern like "printer/{id}/status".
func (r *Router) Register(pattern string, handler HandlerFunc) {
	r.routes = append(r.routes, route{
		segments: strings.Split(pattern, "/"),
		handler:  handler,
	})
}

// Match returns the handler and captured params for path, or nil when no
// pattern matches.
func (r *Router) Match(path string) (HandlerFunc, map[string]string) {
	parts := strings.Split(strings.ToLower(path), "/")
	for _, rt := range r.routes {
		if params, ok := rt.match(parts); ok {
			return rt.handler, params
		}
	}
	return nil, nil
}

func (rt *route) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(rt.segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range rt.segments {
		if name, ok := paramName(seg); ok {
			params[name] = parts[i]
			continue
		}
		if !strings.EqualFold(seg, parts[i]) {
			return nil, false
		}
	}
	return params, true
}
