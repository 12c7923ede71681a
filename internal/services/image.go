package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/config"
	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/gemini"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/media"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/openai"
	"github.com/kelsos/mediagen/internal/responses"
	"github.com/kelsos/mediagen/internal/storage"
)

// ErrNoImages is returned when a chat answer references no image.
var ErrNoImages = errors.New("no image found in response")

// GeminiImageJob generates or edits an image with the Google-native API.
type GeminiImageJob struct {
	Prompt      string
	Model       string
	AspectRatio string
	ImageSize   string
	Inputs      []string
	Output      string
}

// ChatImageJob generates images with a chat-completions image model.
type ChatImageJob struct {
	Prompt        string
	Model         string
	Ratio         string
	ReferenceURLs []string
	Output        string
}

// FluxImageJob generates an image, or edits Input when it is set.
type FluxImageJob struct {
	Prompt      string
	Model       string
	AspectRatio string
	Input       string
	Mask        string
	Output      string
}

// ImageService generates images through the three supported vendor shapes.
type ImageService struct {
	config     *config.Config
	chat       *openai.Client
	gemini     *gemini.Client
	downloader *download.Downloader
	store      *storage.Store
}

func NewImageService(cfg *config.Config) *ImageService {
	apiClient := client.NewAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)
	geminiClient := client.NewAPIClient(cfg.GeminiBaseURL, cfg.APIKey, cfg.HTTPTimeout)

	return &ImageService{
		config:     cfg,
		chat:       openai.NewClient(apiClient),
		gemini:     gemini.NewClient(geminiClient),
		downloader: download.NewDownloader(apiClient.StreamingHTTPClient(), cfg.ChunkSize),
		store:      storage.New(cfg.OutputDir),
	}
}

// Gemini generates one image and writes it to disk.
func (s *ImageService) Gemini(ctx context.Context, job GeminiImageJob) (*models.Artifact, error) {
	start := time.Now()
	if job.Model == "" {
		job.Model = s.config.ImageModel
	}

	inputs := make([]*media.File, 0, len(job.Inputs))
	for _, path := range job.Inputs {
		f, err := media.LoadImage(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, f)
	}

	logger.Info("Generating image with %s: %s", job.Model, trimForLog(job.Prompt, 60))
	blob, err := s.gemini.GenerateImage(ctx, job.Model, job.Prompt, gemini.ImageOptions{
		AspectRatio: job.AspectRatio,
		ImageSize:   job.ImageSize,
		Inputs:      inputs,
	})
	if err != nil {
		return nil, err
	}

	return s.saveBytes(job.Output, "gemini_image", blob.Data, job.Prompt, job.Model, start)
}

// Chat generates images with a chat model and saves every image the answer
// references. Data URLs are decoded, http(s) URLs are downloaded.
func (s *ImageService) Chat(ctx context.Context, job ChatImageJob) ([]*models.Artifact, error) {
	start := time.Now()
	if job.Model == "" {
		job.Model = s.config.ChatModel
	}

	prompt, err := openai.WithRatioSuffix(job.Prompt, job.Ratio)
	if err != nil {
		return nil, err
	}

	parts := []openai.ContentPart{openai.TextPart(prompt)}
	for _, u := range job.ReferenceURLs {
		parts = append(parts, openai.ImagePart(u))
	}

	logger.Info("Generating image with %s: %s", job.Model, trimForLog(prompt, 60))
	completion, err := s.chat.Complete(ctx, openai.ChatRequest{
		Model:    job.Model,
		Messages: []openai.Message{openai.UserMessage(parts...)},
	})
	if err != nil {
		return nil, err
	}

	refs := responses.ImageReferences(completion.Content())
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoImages, client.Snippet(completion.Content()))
	}

	artifacts := make([]*models.Artifact, 0, len(refs))
	for i, ref := range refs {
		output := indexedName(job.Output, i, len(refs))
		prefix := "chat_image"
		if len(refs) > 1 {
			prefix = fmt.Sprintf("chat_image_%d", i+1)
		}
		var artifact *models.Artifact
		if strings.HasPrefix(ref, "data:") {
			_, data, decodeErr := media.DecodeDataURL(ref)
			if decodeErr != nil {
				return artifacts, decodeErr
			}
			artifact, err = s.saveBytes(output, prefix, data, job.Prompt, job.Model, start)
		} else {
			artifact, err = s.saveURL(ctx, output, prefix, ref, job.Prompt, job.Model, start)
		}
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// Flux generates an image with the images API, or edits job.Input.
func (s *ImageService) Flux(ctx context.Context, job FluxImageJob) (*models.Artifact, error) {
	start := time.Now()
	if job.Model == "" {
		job.Model = s.config.FluxModel
	}

	var images *responses.ImagesResponse
	var err error
	if job.Input != "" {
		req := openai.EditRequest{Model: job.Model, Prompt: job.Prompt, AspectRatio: job.AspectRatio}
		if req.Image, err = media.LoadImage(job.Input); err != nil {
			return nil, err
		}
		if job.Mask != "" {
			if req.Mask, err = media.LoadImage(job.Mask); err != nil {
				return nil, err
			}
		}
		logger.Info("Editing %s with %s", job.Input, job.Model)
		images, err = s.chat.EditImages(ctx, req)
	} else {
		logger.Info("Generating image with %s: %s", job.Model, trimForLog(job.Prompt, 60))
		images, err = s.chat.GenerateImages(ctx, openai.ImageRequest{
			Model:       job.Model,
			Prompt:      job.Prompt,
			AspectRatio: job.AspectRatio,
		})
	}
	if err != nil {
		return nil, err
	}

	datum := images.Data[0]
	if datum.URL != "" {
		return s.saveURL(ctx, job.Output, "flux_image", datum.URL, job.Prompt, job.Model, start)
	}
	data, err := base64.StdEncoding.DecodeString(datum.B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode b64_json: %w", err)
	}
	return s.saveBytes(job.Output, "flux_image", data, job.Prompt, job.Model, start)
}

func (s *ImageService) saveBytes(output, prefix string, data []byte, prompt, model string, start time.Time) (*models.Artifact, error) {
	ext := media.Extension(data)
	if ext == "" {
		ext = ".png"
	}
	path, err := s.store.Path(output, prefix, ext)
	if err != nil {
		return nil, err
	}
	size, err := s.store.WriteBytes(path, data)
	if err != nil {
		return nil, err
	}
	logger.Info("Saved %s (%s)", path, download.HumanSize(size))

	artifact := &models.Artifact{
		Path:     path,
		Size:     size,
		MIMEType: media.DetectMIME(data),
		Prompt:   prompt,
		Model:    model,
		Elapsed:  time.Since(start),
	}
	writeSidecar(s.config, s.store, "image", artifact)
	return artifact, nil
}

func (s *ImageService) saveURL(ctx context.Context, output, prefix, url, prompt, model string, start time.Time) (*models.Artifact, error) {
	ext := filepath.Ext(strings.SplitN(filepath.Base(url), "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".png"
	}
	path, err := s.store.Path(output, prefix, ext)
	if err != nil {
		return nil, err
	}
	result, err := s.downloader.Fetch(ctx, download.Request{URL: url, Path: path})
	if err != nil {
		return nil, err
	}

	artifact := &models.Artifact{
		Path:      result.Path,
		Size:      result.Size,
		MIMEType:  result.ContentType,
		Prompt:    prompt,
		Model:     model,
		SourceURL: result.SourceURL,
		Elapsed:   time.Since(start),
	}
	writeSidecar(s.config, s.store, "image", artifact)
	return artifact, nil
}

// indexedName gives each of several outputs a distinct name.
func indexedName(output string, i, n int) string {
	if output == "" || n == 1 {
		return output
	}
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(output, ext), i+1, ext)
}
