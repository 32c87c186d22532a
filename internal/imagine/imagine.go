// Package imagine generates images through the OpenAI Images API and
// fits the result to what a chat channel accepts as an upload.
package imagine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	openai "github.com/sashabaranov/go-openai"

	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

// Size selects the generated image dimensions.
type Size string

const (
	SizeSquare    Size = "square"    // 1024x1024
	SizeLandscape Size = "landscape" // 1792x1024
	SizePortrait  Size = "portrait"  // 1024x1792
)

// ParseSize accepts the command option values plus a few aliases. The
// empty string selects the square default.
func ParseSize(s string) (Size, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "square", "1024x1024":
		return SizeSquare, true
	case "landscape", "wide", "1792x1024":
		return SizeLandscape, true
	case "portrait", "tall", "1024x1792":
		return SizePortrait, true
	}
	return "", false
}

func (s Size) api() string {
	switch s {
	case SizeLandscape:
		return openai.CreateImageSize1792x1024
	case SizePortrait:
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

// Style selects the DALL-E rendering style.
type Style string

const (
	StyleVivid   Style = "vivid"   // dramatic and hyper-real
	StyleNatural Style = "natural" // more realistic
)

// ParseStyle accepts the command option values; empty selects vivid.
func ParseStyle(s string) (Style, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vivid":
		return StyleVivid, true
	case "natural":
		return StyleNatural, true
	}
	return "", false
}

func (s Style) api() string {
	if s == StyleNatural {
		return openai.CreateImageStyleNatural
	}
	return openai.CreateImageStyleVivid
}

// Result is a generated image ready for upload.
type Result struct {
	Name          string
	Data          []byte
	MIME          string
	RevisedPrompt string
}

// Generator drives the Images API.
type Generator struct {
	client *openai.Client
	model  string
}

// New creates a Generator for the given API key.
func New(apiKey string) *Generator {
	return &Generator{
		client: openai.NewClient(apiKey),
		model:  openai.CreateImageModelDallE3,
	}
}

// SetModel overrides the default image model. Empty keeps the default.
func (g *Generator) SetModel(model string) {
	if model != "" {
		g.model = model
	}
}

// Generate creates one image for prompt and fits it to the upload
// budget. The model may rewrite the prompt; the rewrite is reported in
// RevisedPrompt so the reply can show it.
func (g *Generator) Generate(ctx context.Context, prompt string, size Size, style Style) (*Result, error) {
	start := time.Now()
	L_info("imagine: generating", "model", g.model, "size", size, "style", style, "prompt", truncate(prompt, 100))

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Model:          g.model,
		Prompt:         prompt,
		N:              1,
		Size:           size.api(),
		Style:          style.api(),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		MetricDuration("imagine", "generate", time.Since(start))
		MetricFailWithReason("imagine", "generate_status", "api_error")
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		MetricFailWithReason("imagine", "generate_status", "empty_response")
		return nil, fmt.Errorf("image generation returned no data")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		MetricFailWithReason("imagine", "generate_status", "bad_payload")
		return nil, fmt.Errorf("decode image payload: %w", err)
	}

	fitted, err := FitUpload(raw)
	if err != nil {
		MetricFailWithReason("imagine", "generate_status", "oversized")
		return nil, err
	}

	det := mimetype.Detect(fitted)
	res := &Result{
		Name:          "imagine" + det.Extension(),
		Data:          fitted,
		MIME:          det.String(),
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}

	MetricDuration("imagine", "generate", time.Since(start))
	MetricSuccess("imagine", "generate_status")
	L_info("imagine: generated", "bytes", len(res.Data), "mime", res.MIME, "elapsed", time.Since(start))
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
