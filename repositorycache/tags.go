package repositorycache

import (
	"context"
	"slices"
)

type tagsKey struct{}

// WithCacheTags returns ctx extended with tags, such as the screen that
// triggered a load. Repositories copy the tags into every event emitted on
// behalf of that context, background fetches included. Empty and repeated
// tags are dropped.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	current := CacheTags(ctx)
	merged := dedupeStrings(append(current, tags...))
	if len(merged) == len(current) {
		return ctx
	}
	return context.WithValue(ctx, tagsKey{}, merged)
}

// CacheTags returns a copy of the tags attached to ctx.
func CacheTags(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	tags, _ := ctx.Value(tagsKey{}).([]string)
	return slices.Clone(tags)
}

func dedupeStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
