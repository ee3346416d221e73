package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// URLSigner issues time-limited URLs for private attachment paths.
type URLSigner interface {
	SignAttachment(ctx context.Context, path string) (string, error)
}

// AttachmentResolver turns stored attachment paths into fetchable signed
// URLs and caches resolutions for their nominal lifetime. Resolve never
// fails loudly: any error yields "" and the caller renders a placeholder.
// A cached URL can outlive its real validity by a beat; consumers treat a
// broken reference as transient.
type AttachmentResolver struct {
	signer URLSigner
	ttl    time.Duration
	mu     sync.Mutex
	cache  map[string]resolution
	now    func() time.Time
	log    *logrus.Logger
}

type resolution struct {
	url     string
	expires time.Time
}

// NewAttachmentResolver builds a resolver caching entries for ttl.
func NewAttachmentResolver(signer URLSigner, ttl time.Duration, log *logrus.Logger) *AttachmentResolver {
	return &AttachmentResolver{
		signer: signer,
		ttl:    ttl,
		cache:  make(map[string]resolution),
		now:    time.Now,
		log:    log,
	}
}

// Resolve returns a signed URL for the path, or "" when the path is empty
// or resolution fails.
func (r *AttachmentResolver) Resolve(ctx context.Context, path string) string {
	if path == "" {
		return ""
	}

	r.mu.Lock()
	cached, ok := r.cache[path]
	r.mu.Unlock()
	if ok && r.now().Before(cached.expires) {
		return cached.url
	}

	url, err := r.signer.SignAttachment(ctx, path)
	if err != nil {
		r.log.WithError(err).WithField("path", path).Warn("attachment resolution failed")
		return ""
	}

	r.mu.Lock()
	r.cache[path] = resolution{url: url, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return url
}

// Invalidate drops a cached resolution, forcing the next Resolve to re-sign.
func (r *AttachmentResolver) Invalidate(path string) {
	r.mu.Lock()
	delete(r.cache, path)
	r.mu.Unlock()
}
