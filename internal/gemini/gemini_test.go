package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/fakeapi"
	"github.com/kelsos/mediagen/internal/media"
	"github.com/kelsos/mediagen/internal/responses"
)

func newClient(srv *fakeapi.Server) *Client {
	return NewClient(client.NewAPIClient(srv.URL+"/v1beta", "sk-test", 2*time.Second))
}

func imageResponse(w http.ResponseWriter, _ *http.Request) {
	fakeapi.JSON(w, http.StatusOK, map[string]interface{}{
		"candidates": []interface{}{map[string]interface{}{
			"content": map[string]interface{}{"parts": []interface{}{
				map[string]interface{}{"text": "Here is your image"},
				map[string]interface{}{"inlineData": map[string]string{"mimeType": "image/png", "data": "iVBORw=="}},
			}},
		}},
	})
}

func TestGenerateImageBuildsNativePayload(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/v1beta/models/{model}", imageResponse)

	input := &media.File{Name: "cat.jpg", MIMEType: "image/jpeg", Data: []byte("hi")}
	blob, err := newClient(srv).GenerateImage(context.Background(), "gemini-3-pro-image-preview", "make it blue", ImageOptions{
		AspectRatio: "16:9",
		ImageSize:   "2k",
		Inputs:      []*media.File{input},
	})
	require.NoError(t, err)

	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, blob.Data)

	req := srv.Requests()[0]
	assert.Equal(t, "/v1beta/models/gemini-3-pro-image-preview:generateContent", req.Path)
	assert.JSONEq(t, `{
		"contents": [{"parts": [
			{"text": "make it blue"},
			{"inline_data": {"mime_type": "image/jpeg", "data": "aGk="}}
		]}],
		"generationConfig": {
			"responseModalities": ["IMAGE"],
			"imageConfig": {"aspectRatio": "16:9", "imageSize": "2K"}
		}
	}`, string(req.Body))
}

func TestGenerateImageValidatesOptions(t *testing.T) {
	srv := fakeapi.New(t)
	c := newClient(srv)

	_, err := c.GenerateImage(context.Background(), "m", "p", ImageOptions{AspectRatio: "7:5"})
	assert.Error(t, err)

	_, err = c.GenerateImage(context.Background(), "m", "p", ImageOptions{ImageSize: "8K"})
	assert.Error(t, err)

	assert.Empty(t, srv.Requests())
}

func TestGenerateImageWithoutImagePart(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/v1beta/models/{model}", fakeapi.Status(http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"I cannot draw that"}]}}]}`))

	_, err := newClient(srv).GenerateImage(context.Background(), "m", "p", ImageOptions{})

	require.True(t, errors.Is(err, responses.ErrInvalidResponse))
	assert.Contains(t, err.Error(), "I cannot draw that")
}

func TestAnalyzeUsesLowTemperature(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/v1beta/models/{model}", fakeapi.Status(http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"A short "},{"text":"podcast."}]}}]}`))

	audio := &media.File{Name: "a.mp3", MIMEType: "audio/mp3", Data: []byte("hi")}
	text, err := newClient(srv).Analyze(context.Background(), "gemini-2.5-pro", "Summarize", audio)
	require.NoError(t, err)

	assert.Equal(t, "A short podcast.", text)
	assert.JSONEq(t, `{
		"contents": [{"parts": [
			{"text": "Summarize"},
			{"inline_data": {"mime_type": "audio/mp3", "data": "aGk="}}
		]}],
		"generationConfig": {"temperature": 0.2, "maxOutputTokens": 4096}
	}`, string(srv.Requests()[0].Body))
}

func TestBlockedPromptIsReported(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/v1beta/models/{model}", fakeapi.Status(http.StatusOK, `{"promptFeedback":{"blockReason":"PROHIBITED_CONTENT"}}`))

	_, err := newClient(srv).Analyze(context.Background(), "m", "q", &media.File{MIMEType: "audio/mp3", Data: []byte("x")})
	assert.ErrorContains(t, err, "PROHIBITED_CONTENT")
}
