package responses

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// GenerateContent is the Google-native generateContent body.
type GenerateContent struct {
	Candidates     []Candidate     `json:"candidates" validate:"required,min=1,dive"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts" validate:"required,min=1,dive"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data" validate:"required,base64"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// DecodeGenerateContent validates a generateContent body. A prompt blocked by
// the safety filter has no candidates; its reason is surfaced in the error.
func DecodeGenerateContent(data []byte) (*GenerateContent, error) {
	var out GenerateContent
	if err := Decode(data, &out); err != nil {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: prompt blocked: %s", ErrInvalidResponse, out.PromptFeedback.BlockReason)
		}
		return nil, err
	}
	return &out, nil
}

// Text concatenates the text parts of the first candidate.
func (g *GenerateContent) Text() string {
	var b strings.Builder
	for _, part := range g.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// Blob is decoded inline media.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Blobs decodes every inline media part across all candidates.
func (g *GenerateContent) Blobs() ([]Blob, error) {
	var blobs []Blob
	for _, candidate := range g.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			blobs = append(blobs, Blob{MIMEType: part.InlineData.MimeType, Data: data})
		}
	}
	return blobs, nil
}
