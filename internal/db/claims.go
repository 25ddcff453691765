package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Database roles a request runs as. The service connection must be a member
// of both.
const (
	RoleAnon          = "anon"
	RoleAuthenticated = "authenticated"
)

var anonClaims = []byte(`{"role":"anon"}`)

// scope is the identity queries made with a context run under.
type scope struct {
	role    string
	claims  []byte
	subject string
}

type scopeKey struct{}

// WithClaims attaches the caller's raw JWT claims (JSON) and subject to ctx.
// Queries run with such a context execute as that user.
func WithClaims(ctx context.Context, claims []byte, subject string) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{role: RoleAuthenticated, claims: claims, subject: subject})
}

// WithAnonymous marks ctx as an unauthenticated request. Queries run as the
// anon role, so row-level security still applies.
func WithAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{role: RoleAnon, claims: anonClaims})
}

// Unscoped drops any request identity from ctx. Only for lookups whose
// results are shared between callers, such as reference rows.
func Unscoped(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, (*scope)(nil))
}

func scopeFromContext(ctx context.Context) (*scope, bool) {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s, s != nil
}

// ClaimsFromContext returns the claims queries with ctx run under.
func ClaimsFromContext(ctx context.Context) ([]byte, bool) {
	s, ok := scopeFromContext(ctx)
	if !ok {
		return nil, false
	}
	return s.claims, true
}

// RoleFromContext returns the database role of ctx, if it carries a request.
func RoleFromContext(ctx context.Context) (string, bool) {
	s, ok := scopeFromContext(ctx)
	if !ok {
		return "", false
	}
	return s.role, true
}

type statement struct {
	sql  string
	args []any
}

// statements switch a transaction to the scope's role and expose its claims
// to policies through request.jwt.claims.
func (s *scope) statements() []statement {
	out := []statement{
		{sql: "SET LOCAL ROLE " + pgx.Identifier{s.role}.Sanitize()},
		{sql: "SELECT set_config('request.jwt.claims', $1, true)", args: []any{string(s.claims)}},
	}
	if s.subject != "" {
		out = append(out, statement{sql: "SELECT set_config('request.jwt.claim.sub', $1, true)", args: []any{s.subject}})
	}
	return out
}
