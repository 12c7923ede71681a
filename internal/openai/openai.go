// Package openai speaks the OpenAI-compatible chat completions and images
// endpoints exposed by relay vendors.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/media"
	"github.com/kelsos/mediagen/internal/responses"
)

const (
	chatEndpoint        = "/chat/completions"
	imagesEndpoint      = "/images/generations"
	imageEditsEndpoint  = "/images/edits"
	maxStreamLineLength = 1 << 20
)

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart references media by URL. Data URLs are accepted, which is how
// audio and local images are passed inline.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// Message content is either a plain string or a list of parts.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

func SystemMessage(text string) Message {
	return Message{Role: "system", Content: text}
}

// UserMessage sends plain text when given a single text part.
func UserMessage(parts ...ContentPart) Message {
	if len(parts) == 1 && parts[0].Type == "text" {
		return Message{Role: "user", Content: parts[0].Text}
	}
	return Message{Role: "user", Content: parts}
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	N              int    `json:"n,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// EditRequest edits Image according to Prompt. Mask is optional.
type EditRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	Image       *media.File
	Mask        *media.File
}

type Client struct {
	api *client.APIClient
}

func NewClient(api *client.APIClient) *Client {
	return &Client{api: api}
}

// Complete sends a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*responses.ChatCompletion, error) {
	req.Stream = false

	var raw client.RawResponse
	if err := c.api.Post(ctx, chatEndpoint, req, &raw); err != nil {
		return nil, err
	}

	var completion responses.ChatCompletion
	if err := responses.Decode(raw.Body, &completion); err != nil {
		return nil, fmt.Errorf("%w (body: %s)", err, client.Snippet(string(raw.Body)))
	}
	return &completion, nil
}

// StreamChat sends a streaming chat completion and returns the concatenated
// text. onDelta, when set, receives each fragment as it arrives.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, onDelta func(string)) (string, error) {
	req.Stream = true

	body, err := c.api.Stream(ctx, chatEndpoint, req)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var content strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineLength)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if string(data) == "[DONE]" {
			break
		}

		var chunk responses.ChatChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			logger.Debug("Skipping malformed stream event: %s", client.Snippet(string(data)))
			continue
		}
		if delta := chunk.Delta(); delta != "" {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return content.String(), fmt.Errorf("error reading stream: %w", err)
	}

	return content.String(), nil
}

// GenerateImages calls the images API.
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest) (*responses.ImagesResponse, error) {
	var raw client.RawResponse
	if err := c.api.Post(ctx, imagesEndpoint, req, &raw); err != nil {
		return nil, err
	}
	return decodeImages(raw.Body)
}

// EditImages uploads an image and edit instruction to the images edit API.
func (c *Client) EditImages(ctx context.Context, req EditRequest) (*responses.ImagesResponse, error) {
	if req.Image == nil {
		return nil, fmt.Errorf("an input image is required for editing")
	}

	form := client.Form{
		Fields: [][2]string{{"model", req.Model}, {"prompt", req.Prompt}},
		Files:  []client.FilePart{filePart("image", req.Image)},
	}
	if req.AspectRatio != "" {
		form.Fields = append(form.Fields, [2]string{"aspect_ratio", req.AspectRatio})
	}
	if req.Mask != nil {
		form.Files = append(form.Files, filePart("mask", req.Mask))
	}

	var raw client.RawResponse
	if err := c.api.PostMultipart(ctx, imageEditsEndpoint, form, &raw); err != nil {
		return nil, err
	}
	return decodeImages(raw.Body)
}

func filePart(field string, f *media.File) client.FilePart {
	return client.FilePart{
		Field:       field,
		FileName:    f.Name,
		ContentType: f.MIMEType,
		Content:     bytes.NewReader(f.Data),
	}
}

func decodeImages(body []byte) (*responses.ImagesResponse, error) {
	var images responses.ImagesResponse
	if err := responses.Decode(body, &images); err != nil {
		return nil, fmt.Errorf("%w (body: %s)", err, client.Snippet(string(body)))
	}
	for _, datum := range images.Data {
		if err := datum.CheckURL(); err != nil {
			return nil, err
		}
	}
	return &images, nil
}
