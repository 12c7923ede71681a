// Package gemini calls the Google-native generateContent endpoint.
package gemini

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/media"
	"github.com/kelsos/mediagen/internal/responses"
)

// AspectRatios lists the ratios accepted by imageConfig.aspectRatio.
var AspectRatios = []string{"21:9", "16:9", "4:3", "3:2", "1:1", "9:16", "3:4", "2:3", "5:4", "4:5"}

// ImageSizes lists the values accepted by imageConfig.imageSize.
var ImageSizes = []string{"1K", "2K", "4K"}

const DefaultAspectRatio = "1:1"

type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig `json:"imageConfig,omitempty"`
	Temperature        *float64     `json:"temperature,omitempty"`
	MaxOutputTokens    int          `json:"maxOutputTokens,omitempty"`
}

type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// FilePart embeds a local file as an inline_data part.
func FilePart(f *media.File) Part {
	return Part{InlineData: &InlineData{MimeType: f.MIMEType, Data: f.Base64()}}
}

type Client struct {
	api *client.APIClient
}

func NewClient(api *client.APIClient) *Client {
	return &Client{api: api}
}

// GenerateContent posts req for model and validates the response.
func (c *Client) GenerateContent(ctx context.Context, model string, req Request) (*responses.GenerateContent, error) {
	var raw client.RawResponse
	endpoint := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
	if err := c.api.Post(ctx, endpoint, req, &raw); err != nil {
		return nil, err
	}

	out, err := responses.DecodeGenerateContent(raw.Body)
	if err != nil {
		return nil, fmt.Errorf("%w (body: %s)", err, client.Snippet(string(raw.Body)))
	}
	return out, nil
}

// ImageOptions controls image generation.
type ImageOptions struct {
	AspectRatio string
	ImageSize   string
	Inputs      []*media.File
}

// GenerateImage asks for an image and returns the first inline image part.
// Input images turn the request into an edit.
func (c *Client) GenerateImage(ctx context.Context, model, prompt string, opts ImageOptions) (*responses.Blob, error) {
	ratio := opts.AspectRatio
	if ratio == "" {
		ratio = DefaultAspectRatio
	}
	if !contains(AspectRatios, ratio) {
		return nil, fmt.Errorf("unsupported aspect ratio %q (allowed: %s)", ratio, strings.Join(AspectRatios, ", "))
	}
	size := strings.ToUpper(opts.ImageSize)
	if size != "" && !contains(ImageSizes, size) {
		return nil, fmt.Errorf("unsupported image size %q (allowed: %s)", opts.ImageSize, strings.Join(ImageSizes, ", "))
	}

	parts := []Part{{Text: prompt}}
	for _, input := range opts.Inputs {
		parts = append(parts, FilePart(input))
	}

	out, err := c.GenerateContent(ctx, model, Request{
		Contents: []Content{{Parts: parts}},
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &ImageConfig{AspectRatio: ratio, ImageSize: size},
		},
	})
	if err != nil {
		return nil, err
	}

	blobs, err := out.Blobs()
	if err != nil {
		return nil, err
	}
	for _, blob := range blobs {
		if strings.HasPrefix(blob.MIMEType, "image/") || blob.MIMEType == "" {
			return &blob, nil
		}
	}
	return nil, fmt.Errorf("%w: no image in response (text: %s)", responses.ErrInvalidResponse, client.Snippet(out.Text()))
}

// Understanding settings used for audio and other analysis prompts.
const (
	AnalysisTemperature     = 0.2
	AnalysisMaxOutputTokens = 4096
)

// Analyze sends a question about an inline file and returns the text answer.
func (c *Client) Analyze(ctx context.Context, model, question string, file *media.File) (string, error) {
	temperature := AnalysisTemperature
	out, err := c.GenerateContent(ctx, model, Request{
		Contents: []Content{{Parts: []Part{{Text: question}, FilePart(file)}}},
		GenerationConfig: &GenerationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: AnalysisMaxOutputTokens,
		},
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(out.Text())
	if text == "" {
		return "", fmt.Errorf("%w: response has no text", responses.ErrInvalidResponse)
	}
	return text, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
