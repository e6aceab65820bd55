// Package compiler assembles the final deck artifact from the outline,
// slide content and resolved images of a task.
package compiler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"decksmith/internal/blob"
	"decksmith/internal/generate"
	"decksmith/internal/store"
	"decksmith/internal/taskerr"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard.
const zipMethodZstd uint16 = 93

func init() {
	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
	zip.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(&errReader{err: err})
		}
		return zr.IOReadCloser()
	})
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

// Compiler turns a task's generated pieces into one downloadable archive.
type Compiler struct {
	blobs     blob.Store
	artifacts store.ArtifactStore
	container string
	logger    *slog.Logger
}

func New(blobs blob.Store, artifacts store.ArtifactStore, container string, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		blobs:     blobs,
		artifacts: artifacts,
		container: container,
		logger:    logger,
	}
}

type manifest struct {
	TaskID     string          `json:"task_id"`
	Topic      string          `json:"topic"`
	Style      string          `json:"style"`
	SlideCount int             `json:"slide_count"`
	Slides     []manifestSlide `json:"slides"`
	CompiledAt time.Time       `json:"compiled_at"`
}

type manifestSlide struct {
	Order       int    `json:"order"`
	Title       string `json:"title"`
	ContentPath string `json:"content_path"`
	ImagePath   string `json:"image_path"`
}

// Compile assembles the archive for a task whose outline, content and images
// are already persisted, uploads it, and records the artifact. Slide JSON
// entries are zstd-compressed; image entries are stored as-is, PNG data does
// not compress further.
//
// A slide image that cannot be resolved or fetched is substituted with a
// rendered placeholder: a broken image reference degrades one slide, it
// never fails the deck.
func (c *Compiler) Compile(ctx context.Context, task *store.Task) (*store.Artifact, error) {
	if task.OutlineRef == nil || task.ContentRef == nil {
		return nil, taskerr.New(taskerr.KindCompilation, "task is missing outline or content references")
	}

	var outline store.Outline
	if err := c.fetchJSON(ctx, *task.OutlineRef, &outline); err != nil {
		return nil, err
	}
	var deck store.DeckContent
	if err := c.fetchJSON(ctx, *task.ContentRef, &deck); err != nil {
		return nil, err
	}
	if len(deck.Slides) == 0 {
		return nil, taskerr.New(taskerr.KindCompilation, "deck content has no slides")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	m := manifest{
		TaskID:     task.ID.String(),
		Topic:      outline.Topic,
		Style:      outline.Style,
		SlideCount: len(deck.Slides),
		CompiledAt: time.Now().UTC(),
	}

	for _, slide := range deck.Slides {
		contentPath := fmt.Sprintf("slides/%02d.json", slide.Order)
		imagePath := fmt.Sprintf("images/%02d.png", slide.Order)

		slideJSON, err := json.MarshalIndent(slide, "", "  ")
		if err != nil {
			return nil, taskerr.Wrap(taskerr.KindCompilation,
				fmt.Sprintf("failed to encode slide %d", slide.Order), err)
		}
		if err := writeEntry(zw, contentPath, zipMethodZstd, slideJSON); err != nil {
			return nil, err
		}

		image := c.slideImage(ctx, slide, outline.Style)
		if err := writeEntry(zw, imagePath, zip.Store, image); err != nil {
			return nil, err
		}

		m.Slides = append(m.Slides, manifestSlide{
			Order:       slide.Order,
			Title:       slide.Title,
			ContentPath: contentPath,
			ImagePath:   imagePath,
		})
	}

	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, taskerr.Wrap(taskerr.KindCompilation, "failed to encode manifest", err)
	}
	if err := writeEntry(zw, "manifest.json", zipMethodZstd, manifestJSON); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, taskerr.Wrap(taskerr.KindCompilation, "failed to finalize archive", err)
	}

	ref, err := c.blobs.Put(ctx, fmt.Sprintf("artifacts/%s.zip", task.ID), buf.Bytes(), "application/zip")
	if err != nil {
		return nil, taskerr.Wrap(taskerr.KindRetryableUpstream, "artifact upload failed", err)
	}

	artifact := &store.Artifact{
		TaskID:     task.ID,
		BlobRef:    ref,
		SizeBytes:  int64(buf.Len()),
		SlideCount: len(deck.Slides),
	}
	if err := c.artifacts.PutArtifact(ctx, artifact); err != nil {
		return nil, taskerr.Wrap(taskerr.KindRetryableUpstream, "artifact record write failed", err)
	}

	c.logger.Info("deck compiled",
		"task_id", task.ID, "slides", artifact.SlideCount, "size_bytes", artifact.SizeBytes)
	return artifact, nil
}

// fetchJSON loads and decodes a required content blob. These references are
// written by earlier stages of the same pipeline; failing to resolve or
// decode one means the task state is broken, which fails compilation.
func (c *Compiler) fetchJSON(ctx context.Context, ref string, out any) error {
	data, err := c.fetch(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, blob.ErrNotFound) {
			return taskerr.Wrap(taskerr.KindCompilation,
				fmt.Sprintf("required content blob %q is missing", ref), err)
		}
		var te *taskerr.Error
		if errors.As(err, &te) {
			return err
		}
		return taskerr.Wrap(taskerr.KindRetryableUpstream,
			fmt.Sprintf("failed to load content blob %q", ref), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return taskerr.Wrap(taskerr.KindCompilation,
			fmt.Sprintf("content blob %q is not valid JSON", ref), err)
	}
	return nil
}

// fetch resolves a reference to its logical container and key before reading.
// References may arrive as plain keys or as fully-qualified URLs naming the
// container in several shapes; the resolved container must match the one
// this compiler is wired to, otherwise the reference points at storage we do
// not hold credentials for.
func (c *Compiler) fetch(ctx context.Context, ref string) ([]byte, error) {
	loc, err := blob.Resolve(ref)
	if err != nil {
		return nil, taskerr.Wrap(taskerr.KindResolution,
			fmt.Sprintf("unresolvable blob reference %q", ref), err)
	}
	if loc.Container != "" && loc.Container != c.container {
		return nil, taskerr.New(taskerr.KindResolution,
			fmt.Sprintf("reference %q names container %q, not the configured %q", ref, loc.Container, c.container))
	}
	return c.blobs.Get(ctx, loc.Key)
}

// slideImage returns the image bytes for a slide, substituting a placeholder
// when the reference is absent, unresolvable, cross-container, or missing
// from storage.
func (c *Compiler) slideImage(ctx context.Context, slide store.SlideContent, style string) []byte {
	if slide.ImageRef != "" {
		data, err := c.fetch(ctx, slide.ImageRef)
		if err == nil {
			return data
		}
		c.logger.Warn("slide image unavailable, substituting placeholder",
			"slide", slide.Order, "ref", slide.ImageRef, "error", err)
	}

	data, err := generate.RenderPlaceholder(slide.Title, style)
	if err != nil {
		// Rendering is pure and cannot realistically fail; an empty entry
		// still keeps the archive well-formed.
		c.logger.Error("placeholder rendering failed", "slide", slide.Order, "error", err)
		return nil
	}
	return data
}

func writeEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return taskerr.Wrap(taskerr.KindCompilation,
			fmt.Sprintf("failed to create archive entry %s", name), err)
	}
	if _, err := w.Write(data); err != nil {
		return taskerr.Wrap(taskerr.KindCompilation,
			fmt.Sprintf("failed to write archive entry %s", name), err)
	}
	return nil
}
