package objstore

import (
	"context"
	"strings"
)

// prefixStore namespaces every object path of an underlying store.
type prefixStore struct {
	inner  Store
	prefix string
}

// WithPrefix returns a view of store rooted at prefix. Keys passed to the
// returned store never carry the prefix; listings have it stripped. An empty
// prefix returns the store unchanged.
func WithPrefix(store Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return store
	}
	return &prefixStore{inner: store, prefix: prefix}
}

func (p *prefixStore) key(objectPath string) string {
	return p.prefix + "/" + strings.TrimPrefix(objectPath, "/")
}

func (p *prefixStore) Upload(ctx context.Context, localPath, objectPath string) error {
	return p.inner.Upload(ctx, localPath, p.key(objectPath))
}

func (p *prefixStore) Download(ctx context.Context, objectPath, localPath string) error {
	return p.inner.Download(ctx, p.key(objectPath), localPath)
}

func (p *prefixStore) Delete(ctx context.Context, objectPath string) error {
	return p.inner.Delete(ctx, p.key(objectPath))
}

func (p *prefixStore) Exists(ctx context.Context, objectPath string) (bool, error) {
	return p.inner.Exists(ctx, p.key(objectPath))
}

func (p *prefixStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.inner.List(ctx, p.key(prefix))
	if err != nil {
		return nil, err
	}
	trimmed := make([]string, len(keys))
	for i, k := range keys {
		trimmed[i] = strings.TrimPrefix(k, p.prefix+"/")
	}
	return trimmed, nil
}
