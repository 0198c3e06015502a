package middleware

import (
	"context"
	"net/http"

	"coai-backend/core/marketplace"
	auth "coai-backend/storage/auth"
)

type requestInfoKey struct{}

type actorKey struct{}

// requestInfo is filled in by inner handlers and read back by the outer
// logging and metrics middleware after the request is served.
type requestInfo struct {
	route string
	actor string
}

func withRequestInfo(ctx context.Context) context.Context {
	if requestInfoFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, requestInfoKey{}, &requestInfo{})
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// SetRoute records the mux pattern that matched r.
func SetRoute(r *http.Request, pattern string) {
	if info := requestInfoFrom(r.Context()); info != nil {
		info.route = pattern
	}
}

// Actor is the authenticated caller of a request.
type Actor struct {
	User    marketplace.User
	Session auth.Session
}

// WithActor attaches an authenticated caller to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	if info := requestInfoFrom(ctx); info != nil {
		info.actor = a.User.ID
	}
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the authenticated caller, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
