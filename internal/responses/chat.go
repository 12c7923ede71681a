package responses

import (
	"fmt"
	"regexp"
	"strings"
)

// ChatCompletion is the non-streaming OpenAI-style chat completion body.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices" validate:"required,min=1,dive"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content" validate:"required"`
}

// Content returns the first choice's message text.
func (c *ChatCompletion) Content() string {
	return c.Choices[0].Message.Content
}

// ChatChunk is one "data:" event of a streamed chat completion.
type ChatChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Delta returns the text carried by the chunk, if any.
func (c *ChatChunk) Delta() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// ImagesResponse is the OpenAI-style images API body.
type ImagesResponse struct {
	Created int64        `json:"created"`
	Data    []ImageDatum `json:"data" validate:"required,min=1,dive"`
}

type ImageDatum struct {
	URL           string `json:"url,omitempty" validate:"required_without=B64JSON"`
	B64JSON       string `json:"b64_json,omitempty" validate:"required_without=URL"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// CheckURL rejects a URL datum that is not an absolute http(s) link.
func (d ImageDatum) CheckURL() error {
	if d.URL != "" && !IsHTTPURL(d.URL) {
		return fmt.Errorf("%w: image url %q is not http(s)", ErrInvalidResponse, d.URL)
	}
	return nil
}

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\(((?:https?://|data:image/)[^)\s]+)\)`)
	bareURLPattern       = regexp.MustCompile(`https?://[^\s<>"{}|\\^\x60\[\]()]+`)
	videoURLPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`https://[^\s)\]]+\.mp4`),
		regexp.MustCompile(`https://[^\s)\]]+/assets/[^\s)\]]+`),
		regexp.MustCompile(`\((https://[^)\s]+)\)`),
	}
)

// ImageReferences lists the images embedded in chat text: markdown image
// links first (http(s) or data URLs), falling back to bare http(s) URLs.
func ImageReferences(content string) []string {
	var refs []string
	for _, m := range markdownImagePattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, m[1])
	}
	if len(refs) > 0 {
		return refs
	}
	for _, u := range bareURLPattern.FindAllString(content, -1) {
		refs = append(refs, strings.TrimRight(u, ".,;"))
	}
	return refs
}

// VideoURL finds the generated video link in chat text.
func VideoURL(content string) string {
	for _, pattern := range videoURLPatterns {
		m := pattern.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		url := m[0]
		if len(m) > 1 {
			url = m[1]
		}
		return strings.Trim(url, "()")
	}
	return ""
}
