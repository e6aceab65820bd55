package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"decksmith/internal/store"
	"decksmith/internal/taskerr"

	"golang.org/x/time/rate"
)

// Bounds on generated slide content. Generated text is clamped into these
// rather than failing the task.
const (
	MaxBullets   = 5
	MaxBulletLen = 160
	MaxNotesLen  = 700
)

// ContentGenerator turns a topic into an outline and per-slide content via
// a text generation endpoint.
type ContentGenerator struct {
	endpoint    TextEndpoint
	limiter     *rate.Limiter
	maxAttempts int
	logger      *slog.Logger
}

// NewContentGenerator wires a content generator. limiter may be nil to
// disable rate limiting (tests).
func NewContentGenerator(endpoint TextEndpoint, limiter *rate.Limiter, maxAttempts int, logger *slog.Logger) *ContentGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentGenerator{
		endpoint:    endpoint,
		limiter:     limiter,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// ValidateSubmission checks submission bounds. Invalid input is rejected
// immediately and never enqueued.
func ValidateSubmission(topic string, pageCount int) error {
	if strings.TrimSpace(topic) == "" {
		return taskerr.Validationf("topic must not be empty")
	}
	if len(topic) > store.MaxTopicLen {
		return taskerr.Validationf("topic exceeds %d characters", store.MaxTopicLen)
	}
	if pageCount < store.MinPageCount || pageCount > store.MaxPageCount {
		return taskerr.Validationf("page_count must be between %d and %d, got %d",
			store.MinPageCount, store.MaxPageCount, pageCount)
	}
	return nil
}

// GenerateOutline produces an outline with exactly pageCount ordered entries.
// Malformed endpoint output degrades to a structurally valid generic outline
// instead of failing the task: a usable deck beats a perfect one.
func (g *ContentGenerator) GenerateOutline(ctx context.Context, topic string, pageCount int, style string) (*store.Outline, error) {
	if err := ValidateSubmission(topic, pageCount); err != nil {
		return nil, err
	}

	prompt := outlinePrompt(topic, pageCount, style)

	var raw string
	err := callWithRetry(ctx, g.maxAttempts, func(ctx context.Context) error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return taskerr.Wrap(taskerr.KindRetryableUpstream, "rate limiter interrupted", err)
			}
		}
		var err error
		raw, err = g.endpoint.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("outline generation failed: %w", err)
	}

	outline := &store.Outline{Topic: topic, Style: style}
	if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), outline); jsonErr != nil || len(outline.Slides) == 0 {
		g.logger.Warn("unparseable outline, using structural fallback", "topic", topic, "error", jsonErr)
		return fallbackOutline(topic, pageCount, style), nil
	}

	outline.Topic = topic
	outline.Style = style
	normalizeOutline(outline, pageCount)
	return outline, nil
}

// GenerateSlideContent produces detailed content for one outline entry.
// Bullets and speaker notes are clamped into the configured bounds.
func (g *ContentGenerator) GenerateSlideContent(ctx context.Context, stub store.SlideStub, topic, style string) (*store.SlideContent, error) {
	prompt := slidePrompt(stub, topic, style)

	var raw string
	err := callWithRetry(ctx, g.maxAttempts, func(ctx context.Context) error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return taskerr.Wrap(taskerr.KindRetryableUpstream, "rate limiter interrupted", err)
			}
		}
		var err error
		raw, err = g.endpoint.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("slide content generation failed: %w", err)
	}

	content := &store.SlideContent{}
	if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), content); jsonErr != nil || content.Title == "" {
		g.logger.Warn("unparseable slide content, using stub fallback",
			"slide", stub.Order, "error", jsonErr)
		content = fallbackSlideContent(stub)
	}

	content.Order = stub.Order
	if content.Title == "" {
		content.Title = stub.Title
	}
	clampContent(content)
	if content.ImagePrompt == "" {
		content.ImagePrompt = imagePromptFor(content.Title, stub.Brief, style)
	}
	return content, nil
}

func outlinePrompt(topic string, pageCount int, style string) string {
	return fmt.Sprintf(
		`Create a %d-slide presentation outline on %q in a %s style. `+
			`Respond with JSON: {"slides":[{"title":"...","brief":"...","order":1}]} `+
			`with exactly %d entries.`,
		pageCount, topic, style, pageCount)
}

func slidePrompt(stub store.SlideStub, topic, style string) string {
	return fmt.Sprintf(
		`Write slide %d of a %s presentation on %q. Slide title: %q. Focus: %s. `+
			`Respond with JSON: {"title":"...","bullets":["..."],"speaker_notes":"...","image_prompt":"..."} `+
			`with at most %d bullets.`,
		stub.Order, style, topic, stub.Title, stub.Brief, MaxBullets)
}

// extractJSON trims any prose the endpoint wrapped around the JSON body.
func extractJSON(raw string) string {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return raw
	}
	end := strings.LastIndexAny(raw, "}]")
	if end < start {
		return raw
	}
	return raw[start : end+1]
}

// fallbackOutline is the minimal structurally valid outline used when the
// endpoint output cannot be parsed.
func fallbackOutline(topic string, pageCount int, style string) *store.Outline {
	outline := &store.Outline{Topic: topic, Style: style}
	for i := 1; i <= pageCount; i++ {
		stub := store.SlideStub{Order: i}
		switch i {
		case 1:
			stub.Title = topic
			stub.Brief = "Introduction and overview"
		case pageCount:
			stub.Title = "Summary"
			stub.Brief = "Key takeaways and next steps"
		default:
			stub.Title = fmt.Sprintf("%s: Part %d", topic, i-1)
			stub.Brief = fmt.Sprintf("Core concepts, section %d", i-1)
		}
		outline.Slides = append(outline.Slides, stub)
	}
	return outline
}

func fallbackSlideContent(stub store.SlideStub) *store.SlideContent {
	return &store.SlideContent{
		Order:        stub.Order,
		Title:        stub.Title,
		Bullets:      []string{stub.Brief},
		SpeakerNotes: stub.Brief,
	}
}

// normalizeOutline forces the outline to exactly pageCount ordered entries,
// truncating or padding as needed.
func normalizeOutline(outline *store.Outline, pageCount int) {
	if len(outline.Slides) > pageCount {
		outline.Slides = outline.Slides[:pageCount]
	}
	for len(outline.Slides) < pageCount {
		n := len(outline.Slides) + 1
		outline.Slides = append(outline.Slides, store.SlideStub{
			Title: fmt.Sprintf("%s: Part %d", outline.Topic, n),
			Brief: "Additional material",
			Order: n,
		})
	}
	for i := range outline.Slides {
		outline.Slides[i].Order = i + 1
		if outline.Slides[i].Title == "" {
			outline.Slides[i].Title = fmt.Sprintf("Slide %d", i+1)
		}
	}
}

func clampContent(content *store.SlideContent) {
	if len(content.Bullets) > MaxBullets {
		content.Bullets = content.Bullets[:MaxBullets]
	}
	if len(content.Bullets) == 0 {
		content.Bullets = []string{content.Title}
	}
	for i, b := range content.Bullets {
		content.Bullets[i] = truncate(strings.TrimSpace(b), MaxBulletLen)
	}
	if content.SpeakerNotes == "" {
		content.SpeakerNotes = content.Title
	}
	content.SpeakerNotes = truncate(content.SpeakerNotes, MaxNotesLen)
}

func imagePromptFor(title, brief, style string) string {
	return fmt.Sprintf("%s illustration for a presentation slide titled %q: %s", style, title, brief)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
