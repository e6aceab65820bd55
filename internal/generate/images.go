package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"decksmith/internal/blob"
	"decksmith/internal/observability"
	"decksmith/internal/store"
	"decksmith/internal/taskerr"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ImageService resolves slide images through a two-level cache: an in-process
// layer in front of the durable cache table, with blobs holding the bytes.
type ImageService struct {
	endpoint    ImageEndpoint
	blobs       blob.Store
	cache       store.CacheStore
	local       *gocache.Cache
	limiter     *rate.Limiter
	maxAttempts int
	callTimeout time.Duration
	concurrency int
	metrics     *observability.PipelineMetrics
	logger      *slog.Logger
}

// ImageServiceConfig bundles the knobs for NewImageService.
type ImageServiceConfig struct {
	MaxAttempts int
	CallTimeout time.Duration
	Concurrency int
	RateLimit   *rate.Limiter
	Metrics     *observability.PipelineMetrics
}

// NewImageService wires an image service.
func NewImageService(endpoint ImageEndpoint, blobs blob.Store, cache store.CacheStore, cfg ImageServiceConfig, logger *slog.Logger) *ImageService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{
		endpoint:    endpoint,
		blobs:       blobs,
		cache:       cache,
		local:       gocache.New(30*time.Minute, 10*time.Minute),
		limiter:     cfg.RateLimit,
		maxAttempts: cfg.MaxAttempts,
		callTimeout: cfg.CallTimeout,
		concurrency: cfg.Concurrency,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// CacheKey is a pure function of the normalized prompt and style: identical
// inputs always produce the same key.
func CacheKey(prompt, style string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(style))))
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrGenerateImage returns the blob reference for the image matching
// (prompt, style). A cache hit never touches the generation endpoint. On a
// miss the endpoint is called under the retry policy; if it fails past the
// ceiling a deterministic placeholder is rendered and cached under the same
// key, so a once-failed prompt does not hammer the endpoint on every
// subsequent request.
func (s *ImageService) GetOrGenerateImage(ctx context.Context, prompt, style, title string) (string, error) {
	key := CacheKey(prompt, style)

	if ref, found := s.local.Get(key); found {
		s.metrics.RecordCacheHit(ctx)
		return ref.(string), nil
	}

	if entry, err := s.cache.GetCacheEntry(ctx, key); err == nil {
		s.metrics.RecordCacheHit(ctx)
		s.cacheLocal(key, entry)
		return entry.BlobRef, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("image cache lookup failed: %w", err)
	}

	s.metrics.RecordCacheMiss(ctx)
	data, genErr := s.generate(ctx, prompt, style)
	if genErr != nil {
		s.logger.Warn("image generation exhausted retries, rendering placeholder",
			"error", genErr, "kind", taskerr.KindOf(genErr))
		var phErr error
		data, phErr = RenderPlaceholder(title, style)
		if phErr != nil {
			return "", fmt.Errorf("placeholder rendering failed: %w", phErr)
		}
	}

	ref, err := s.blobs.Put(ctx, "cache/"+key+".png", data, "image/png")
	if err != nil {
		return "", taskerr.Wrap(taskerr.KindRetryableUpstream, "image storage failed", err)
	}

	if err := s.cache.PutCacheEntry(ctx, &store.CacheEntry{CacheKey: key, BlobRef: ref}); err != nil {
		return "", fmt.Errorf("image cache write failed: %w", err)
	}

	// Re-read so concurrent writers of the same key converge on one entry.
	if entry, err := s.cache.GetCacheEntry(ctx, key); err == nil {
		ref = entry.BlobRef
		s.cacheLocal(key, entry)
	} else {
		s.local.Set(key, ref, gocache.DefaultExpiration)
	}
	return ref, nil
}

// cacheLocal mirrors a durable entry into the in-process tier. The local
// copy must never outlive the durable expiry, and an already-expired entry
// is not cached at all.
func (s *ImageService) cacheLocal(key string, entry *store.CacheEntry) {
	if entry.ExpiresAt == nil {
		s.local.Set(key, entry.BlobRef, gocache.DefaultExpiration)
		return
	}
	ttl := time.Until(*entry.ExpiresAt)
	if ttl <= 0 {
		return
	}
	s.local.Set(key, entry.BlobRef, ttl)
}

// ResolveImages fills in ImageRef for every slide, fanning out to a bounded
// worker pool. A single slide's generation failure does not abort its
// siblings: endpoint failures degrade to placeholders inside
// GetOrGenerateImage, and only storage failures propagate.
func (s *ImageService) ResolveImages(ctx context.Context, deck *store.DeckContent, style string) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)

	for i := range deck.Slides {
		slide := &deck.Slides[i]
		eg.Go(func() error {
			ref, err := s.GetOrGenerateImage(egCtx, slide.ImagePrompt, style, slide.Title)
			if err != nil {
				return fmt.Errorf("slide %d image: %w", slide.Order, err)
			}
			slide.ImageRef = ref
			return nil
		})
	}

	return eg.Wait()
}

func (s *ImageService) generate(ctx context.Context, prompt, style string) ([]byte, error) {
	var data []byte
	err := callWithRetry(ctx, s.maxAttempts, func(ctx context.Context) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return taskerr.Wrap(taskerr.KindRetryableUpstream, "rate limiter interrupted", err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()

		var err error
		data, err = s.endpoint.Generate(callCtx, prompt, style)
		return err
	})
	return data, err
}
