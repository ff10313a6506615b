package main

import (
	"net/http"
)

// DataLoaderMiddleware creates middleware that injects dataloaders into the request context
func DataLoaderMiddleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Fresh loaders per request so the cache never outlives it
			ctx := WithDataLoaders(r.Context(), NewDataLoaders(store))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
