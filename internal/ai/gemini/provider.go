// Package gemini implements models.AIProvider on the Google Gen AI SDK.
// Emotion analysis uses a text model in JSON mode; sketches use an image
// model and are returned as data URIs.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/sketchforge/internal/config"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"google.golang.org/genai"
)

const (
	defaultTextModel  = "gemini-2.0-flash"
	defaultImageModel = "imagen-3.0-generate-002"
	// imageCost is the list price of one generated image in USD.
	imageCost = 0.03
)

type Provider struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

// NewProvider creates a Gemini API client. No request is made until the
// first call.
func NewProvider(ctx context.Context, cfg config.GeminiConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is required", models.ErrProviderUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini client: %v", models.ErrProviderUnavailable, err)
	}

	p := &Provider{client: client, textModel: cfg.TextModel, imageModel: cfg.ImageModel}
	if p.textModel == "" {
		p.textModel = defaultTextModel
	}
	if p.imageModel == "" {
		p.imageModel = defaultImageModel
	}
	return p, nil
}

func (p *Provider) Name() string { return "gemini" }

// GenerateSketch requests one image per variant.
func (p *Provider) GenerateSketch(ctx context.Context, req models.SketchRequest) (models.SketchOutput, error) {
	prompt := sketchPrompt(req)
	out := models.SketchOutput{Model: p.imageModel}

	for i := 0; i < req.Variants; i++ {
		resp, err := p.client.Models.GenerateImages(ctx, p.imageModel, prompt, nil)
		if err != nil {
			return models.SketchOutput{}, fmt.Errorf("%w: generate image: %v", models.ErrProviderUnavailable, err)
		}
		url, err := firstImage(resp)
		if err != nil {
			return models.SketchOutput{}, err
		}
		out.ImageURLs = append(out.ImageURLs, url)
		out.Cost += imageCost
	}
	return out, nil
}

func sketchPrompt(req models.SketchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A detailed pencil design sketch of a piece of jewelry in %s style, on a plain white background.", req.Style)
	if req.Prompt != "" {
		b.WriteString(" The piece is inspired by this story: ")
		b.WriteString(req.Prompt)
	}
	return b.String()
}

func firstImage(resp *genai.GenerateImagesResponse) (string, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return "", fmt.Errorf("%w: no image generated", models.ErrInvalidResponse)
	}
	img := resp.GeneratedImages[0].Image
	if img == nil {
		return "", fmt.Errorf("%w: image filtered: %s", models.ErrInvalidResponse, resp.GeneratedImages[0].RAIFilteredReason)
	}
	if img.GCSURI != "" {
		return img.GCSURI, nil
	}
	if len(img.ImageBytes) == 0 {
		return "", fmt.Errorf("%w: empty image", models.ErrInvalidResponse)
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.ImageBytes), nil
}

const emotionPrompt = `Score the emotional tone of the story below. Respond with JSON only, shaped as
{"primary": "<emotion>", "scores": {"joy": 0.0, "nostalgia": 0.0, "sadness": 0.0, "hope": 0.0}}
where scores are between 0 and 1.

Story:
`

type emotionResponse struct {
	Primary string             `json:"primary"`
	Scores  map[string]float64 `json:"scores"`
}

func (p *Provider) AnalyzeEmotion(ctx context.Context, text string) (models.EmotionAnalysis, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.textModel, genai.Text(emotionPrompt+text), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return models.EmotionAnalysis{}, fmt.Errorf("%w: generate content: %v", models.ErrProviderUnavailable, err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return models.EmotionAnalysis{}, err
	}
	return parseEmotion(raw, p.textModel)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", models.ErrInvalidResponse)
	}
	c := resp.Candidates[0]
	if c.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: blocked by safety filters", models.ErrInvalidResponse)
	}
	if c.Content == nil {
		return "", fmt.Errorf("%w: empty content", models.ErrInvalidResponse)
	}
	var b strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// parseEmotion decodes the model's JSON reply, tolerating a fenced block.
func parseEmotion(raw, model string) (models.EmotionAnalysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var er emotionResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &er); err != nil {
		return models.EmotionAnalysis{}, fmt.Errorf("%w: decode emotion JSON: %v", models.ErrInvalidResponse, err)
	}
	if er.Primary == "" {
		return models.EmotionAnalysis{}, fmt.Errorf("%w: missing primary emotion", models.ErrInvalidResponse)
	}
	if er.Scores == nil {
		er.Scores = map[string]float64{}
	}
	return models.EmotionAnalysis{Primary: er.Primary, Scores: er.Scores, Model: model}, nil
}

var _ models.AIProvider = (*Provider)(nil)
