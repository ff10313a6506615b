package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

// DataLoaders holds the per-request batch loaders.
type DataLoaders struct {
	UserLoader *dataloader.Loader[uuid.UUID, *UserProjection]
}

// NewDataLoaders creates loaders backed by the store.
func NewDataLoaders(store Store) *DataLoaders {
	return &DataLoaders{
		UserLoader: dataloader.NewBatchedLoader(
			userProjectionBatchFn(store),
			dataloader.WithWait[uuid.UUID, *UserProjection](2*time.Millisecond),
		),
	}
}

// GetDataLoadersFromContext retrieves dataloaders from context
func GetDataLoadersFromContext(ctx context.Context) *DataLoaders {
	if dl, ok := ctx.Value(dataLoaderKey).(*DataLoaders); ok {
		return dl
	}
	return nil
}

// WithDataLoaders adds dataloaders to context
func WithDataLoaders(ctx context.Context, dl *DataLoaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, dl)
}

// userProjectionBatchFn resolves a batch of user ids with one store call.
// Unknown ids yield a nil projection rather than an error.
func userProjectionBatchFn(store Store) dataloader.BatchFunc[uuid.UUID, *UserProjection] {
	return func(ctx context.Context, keys []uuid.UUID) []*dataloader.Result[*UserProjection] {
		results := make([]*dataloader.Result[*UserProjection], len(keys))
		for i := range keys {
			results[i] = &dataloader.Result[*UserProjection]{}
		}
		if len(keys) == 0 {
			return results
		}

		rows, err := store.UsersByIDs(ctx, keys)
		if err != nil {
			for i := range results {
				results[i].Error = err
			}
			return results
		}

		byID := make(map[uuid.UUID]*UserProjection, len(rows))
		for i := range rows {
			byID[rows[i].ID] = &rows[i]
		}
		for i, key := range keys {
			results[i].Data = byID[key]
		}
		return results
	}
}

// loadProjections returns projections for ids, keyed by id. It batches
// through the request's loader when one is present and falls back to a
// single store call otherwise.
func loadProjections(ctx context.Context, store Store, ids []uuid.UUID) (map[uuid.UUID]*UserProjection, error) {
	ids = uniqueIDs(ids)
	out := make(map[uuid.UUID]*UserProjection, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	if dl := GetDataLoadersFromContext(ctx); dl != nil {
		data, errs := dl.UserLoader.LoadMany(ctx, ids)()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		for i, id := range ids {
			if i < len(data) && data[i] != nil {
				out[id] = data[i]
			}
		}
		return out, nil
	}

	rows, err := store.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
