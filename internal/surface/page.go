package surface

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

type queryKey struct{}

func withQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryKey{}, query)
}

// redirectQuery returns the raw query, including one hidden from logging by stripQuery.
func redirectQuery(r *http.Request) string {
	if q, ok := r.Context().Value(queryKey{}).(string); ok {
		return q
	}
	return r.URL.RawQuery
}

// writePage writes a short plain-text page for the browser tab.
// Logs write failures internally using the provided context.
func writePage(ctx context.Context, w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := fmt.Fprintln(w, message); err != nil {
		slog.ErrorContext(ctx, "failed to write redirect page", "error", err)
	}
}
