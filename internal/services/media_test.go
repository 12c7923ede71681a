package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/fakeapi"
	"github.com/kelsos/mediagen/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func chatAnswer(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fakeapi.JSON(w, http.StatusOK, map[string]interface{}{
			"choices": []interface{}{map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": content},
			}},
		})
	}
}

func TestVideoSyncDownloadsLinkFromAnswer(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/chat/completions", chatAnswer("Your video is ready: https://cdn.test/sync.mp4"))
	srv.Router.Get("/sync.mp4", fakeapi.Blob("video/mp4", []byte("sync video")))

	cfg := testConfig(t, srv)
	svc := NewVideoSyncService(cfg)
	svc.downloader = download.NewDownloader(routedClient(t, srv), 0)

	result, err := svc.Generate(context.Background(), SyncVideoJob{Prompt: "a cat surfing", Output: "cat.mp4"})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.test/sync.mp4", result.VideoURL)
	require.NotNil(t, result.Artifact)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "cat.mp4"), result.Artifact.Path)
	assert.Equal(t, int64(len("sync video")), result.Artifact.Size)
	assert.FileExists(t, storage.SidecarPath(result.Artifact.Path))
}

func TestVideoSyncStreamsDeltas(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Working... ", "[video](https://cdn.test/s.mp4)"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	srv.Router.Get("/s.mp4", fakeapi.Blob("video/mp4", []byte("streamed")))

	cfg := testConfig(t, srv)
	cfg.SaveSidecar = false
	svc := NewVideoSyncService(cfg)
	svc.downloader = download.NewDownloader(routedClient(t, srv), 0)

	var deltas []string
	result, err := svc.Generate(context.Background(), SyncVideoJob{
		Prompt:  "p",
		Stream:  true,
		OnDelta: func(d string) { deltas = append(deltas, d) },
	})
	require.NoError(t, err)

	assert.Len(t, deltas, 2)
	assert.Equal(t, "https://cdn.test/s.mp4", result.VideoURL)
	assert.NoFileExists(t, storage.SidecarPath(result.Artifact.Path))
}

func TestVideoSyncWithoutLink(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/chat/completions", chatAnswer("Sorry, I cannot make that video."))

	result, err := NewVideoSyncService(testConfig(t, srv)).Generate(context.Background(), SyncVideoJob{Prompt: "p"})

	assert.True(t, errors.Is(err, ErrNoVideoURL))
	require.NotNil(t, result)
	assert.Equal(t, "Sorry, I cannot make that video.", result.Content)
	assert.Nil(t, result.Artifact)
}

func TestGeminiImageSavesInlineData(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/v1beta/models/{model}", func(w http.ResponseWriter, _ *http.Request) {
		fakeapi.JSON(w, http.StatusOK, map[string]interface{}{
			"candidates": []interface{}{map[string]interface{}{
				"content": map[string]interface{}{"parts": []interface{}{
					map[string]interface{}{"inlineData": map[string]string{
						"mimeType": "image/png",
						"data":     base64.StdEncoding.EncodeToString(pngBytes),
					}},
				}},
			}},
		})
	})

	cfg := testConfig(t, srv)
	input := writeFixture(t, "in.png", pngBytes)
	artifact, err := NewImageService(cfg).Gemini(context.Background(), GeminiImageJob{
		Prompt:      "make it blue",
		AspectRatio: "16:9",
		Inputs:      []string{input},
		Output:      "blue.png",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", artifact.MIMEType)
	assert.Equal(t, cfg.ImageModel, artifact.Model)

	req := srv.Requests()[0]
	assert.Equal(t, "/v1beta/models/"+cfg.ImageModel+":generateContent", req.Path)
	assert.Contains(t, string(req.Body), `"aspectRatio":"16:9"`)
	assert.Contains(t, string(req.Body), base64.StdEncoding.EncodeToString(pngBytes))
}

func TestChatImageSavesEveryReference(t *testing.T) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	srv := fakeapi.New(t)
	srv.Router.Post("/chat/completions", chatAnswer(
		"Here you go ![one]("+dataURL+") and ![two](https://cdn.test/two.png)"))
	srv.Router.Get("/two.png", fakeapi.Blob("image/png", pngBytes))

	cfg := testConfig(t, srv)
	svc := NewImageService(cfg)
	svc.downloader = download.NewDownloader(routedClient(t, srv), 0)

	artifacts, err := svc.Chat(context.Background(), ChatImageJob{Prompt: "two otters", Ratio: "3:2", Output: "otters.png"})
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	assert.Equal(t, filepath.Join(cfg.OutputDir, "otters_1.png"), artifacts[0].Path)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "otters_2.png"), artifacts[1].Path)
	assert.Equal(t, "https://cdn.test/two.png", artifacts[1].SourceURL)
	for _, a := range artifacts {
		assert.Equal(t, int64(len(pngBytes)), a.Size)
	}

	var sent struct {
		Messages []struct {
			Content interface{} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(srv.Requests()[0].Body, &sent))
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "two otters【3:2】", sent.Messages[0].Content)
}

func TestChatImageWithoutReference(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/chat/completions", chatAnswer("I can only describe images."))

	_, err := NewImageService(testConfig(t, srv)).Chat(context.Background(), ChatImageJob{Prompt: "p"})
	assert.True(t, errors.Is(err, ErrNoImages))
}

func TestFluxImage(t *testing.T) {
	t.Run("generate decodes base64", func(t *testing.T) {
		srv := fakeapi.New(t)
		srv.Router.Post("/images/generations", func(w http.ResponseWriter, _ *http.Request) {
			fakeapi.JSON(w, http.StatusOK, map[string]interface{}{
				"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(pngBytes)}},
			})
		})

		artifact, err := NewImageService(testConfig(t, srv)).Flux(context.Background(), FluxImageJob{Prompt: "a lighthouse", AspectRatio: "2:3"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(filepath.Base(artifact.Path), "flux_image_"))
		assert.Equal(t, ".png", filepath.Ext(artifact.Path))
		assert.Equal(t, int64(len(pngBytes)), artifact.Size)
	})

	t.Run("edit downloads url", func(t *testing.T) {
		srv := fakeapi.New(t)
		srv.Router.Post("/images/edits", func(w http.ResponseWriter, r *http.Request) {
			_, header, err := r.FormFile("image")
			if assert.NoError(t, err) {
				assert.Equal(t, "in.png", header.Filename)
			}
			fakeapi.JSON(w, http.StatusOK, map[string]interface{}{
				"data": []map[string]string{{"url": "https://cdn.test/edit.png"}},
			})
		})
		srv.Router.Get("/edit.png", fakeapi.Blob("image/png", pngBytes))

		cfg := testConfig(t, srv)
		svc := NewImageService(cfg)
		svc.downloader = download.NewDownloader(routedClient(t, srv), 0)

		artifact, err := svc.Flux(context.Background(), FluxImageJob{
			Prompt: "remove the boat",
			Input:  writeFixture(t, "in.png", pngBytes),
			Output: "edited.png",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/edit.png", artifact.SourceURL)
		assert.Equal(t, cfg.FluxModel, artifact.Model)
	})
}

func TestAudioAnalysis(t *testing.T) {
	audio := []byte("ID3\x03\x00\x00\x00\x00\x00\x00fake mp3 frames")

	t.Run("native", func(t *testing.T) {
		srv := fakeapi.New(t)
		srv.Router.Post("/v1beta/models/{model}", func(w http.ResponseWriter, _ *http.Request) {
			fakeapi.JSON(w, http.StatusOK, map[string]interface{}{
				"candidates": []interface{}{map[string]interface{}{
					"content": map[string]interface{}{"parts": []interface{}{
						map[string]string{"text": "  A short jingle.  "},
					}},
				}},
			})
		})

		cfg := testConfig(t, srv)
		result, err := NewAudioService(cfg).Analyze(context.Background(), AudioJob{
			Source:   writeFixture(t, "jingle.mp3", audio),
			Question: "What is this?",
			Output:   "jingle.txt",
		})
		require.NoError(t, err)

		assert.Equal(t, "A short jingle.", result.Text)
		saved, err := os.ReadFile(result.Artifact.Path)
		require.NoError(t, err)
		assert.Contains(t, string(saved), "Audio: jingle.mp3")
		assert.Contains(t, string(saved), "Question: What is this?")
		assert.True(t, strings.HasSuffix(string(saved), "A short jingle.\n"))
		assert.Contains(t, string(srv.Requests()[0].Body), `"mime_type":"audio/mp3"`)
	})

	t.Run("chat", func(t *testing.T) {
		srv := fakeapi.New(t)
		srv.Router.Post("/chat/completions", chatAnswer("Someone says hello."))

		result, err := NewAudioService(testConfig(t, srv)).Analyze(context.Background(), AudioJob{
			Source:   writeFixture(t, "hello.wav", audio),
			Question: "Transcribe",
			Format:   AudioFormatChat,
		})
		require.NoError(t, err)
		assert.Equal(t, "Someone says hello.", result.Text)

		var sent map[string]interface{}
		require.NoError(t, json.Unmarshal(srv.Requests()[0].Body, &sent))
		assert.Equal(t, 0.2, sent["temperature"])
		assert.EqualValues(t, 4096, sent["max_tokens"])
		assert.Contains(t, string(srv.Requests()[0].Body), "data:audio/wav;base64,")
	})

	t.Run("native rejects url", func(t *testing.T) {
		srv := fakeapi.New(t)
		_, err := NewAudioService(testConfig(t, srv)).Analyze(context.Background(), AudioJob{
			Source: "https://cdn.test/a.mp3", Question: "q",
		})
		assert.Error(t, err)
		assert.Empty(t, srv.Requests())
	})

	t.Run("unknown format", func(t *testing.T) {
		srv := fakeapi.New(t)
		_, err := NewAudioService(testConfig(t, srv)).Analyze(context.Background(), AudioJob{
			Source: "a.mp3", Question: "q", Format: "radio",
		})
		assert.ErrorContains(t, err, "unknown audio format")
	})
}

func TestVisionDescribe(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/chat/completions", chatAnswer("A single transparent pixel."))

	cfg := testConfig(t, srv)
	result, err := NewVisionService(cfg).Describe(context.Background(), VisionJob{
		Source: writeFixture(t, "pixel.png", pngBytes),
		Prompt: "Describe this image",
	})
	require.NoError(t, err)

	assert.Equal(t, "A single transparent pixel.", result.Text)
	assert.True(t, strings.HasPrefix(filepath.Base(result.Artifact.Path), "analysis_result_"))
	assert.Equal(t, cfg.VisionModel, result.Artifact.Model)
	assert.Contains(t, string(srv.Requests()[0].Body), "data:image/png;base64,")
}

func TestVisionPassesRemoteURLThrough(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/chat/completions", chatAnswer("A mountain."))

	_, err := NewVisionService(testConfig(t, srv)).Describe(context.Background(), VisionJob{
		Source: "https://cdn.test/mountain.jpg",
		Prompt: "What is this?",
	})
	require.NoError(t, err)
	assert.Contains(t, string(srv.Requests()[0].Body), `"url":"https://cdn.test/mountain.jpg"`)
}
