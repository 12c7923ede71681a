package services

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/config"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/media"
	"github.com/kelsos/mediagen/internal/openai"
	"github.com/kelsos/mediagen/internal/responses"
	"github.com/kelsos/mediagen/internal/storage"
)

// VisionJob asks Prompt about the image at Source, a local path or an
// http(s) URL.
type VisionJob struct {
	Source string
	Prompt string
	Model  string
	Output string
}

// VisionService describes images through chat completions.
type VisionService struct {
	config *config.Config
	chat   *openai.Client
	store  *storage.Store
}

func NewVisionService(cfg *config.Config) *VisionService {
	return &VisionService{
		config: cfg,
		chat:   openai.NewClient(client.NewAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)),
		store:  storage.New(cfg.OutputDir),
	}
}

// Describe sends the image and prompt, then saves the answer as text.
func (s *VisionService) Describe(ctx context.Context, job VisionJob) (*TextResult, error) {
	start := time.Now()
	if job.Model == "" {
		job.Model = s.config.VisionModel
	}

	imageURL := job.Source
	if !responses.IsHTTPURL(imageURL) {
		image, err := media.LoadImage(job.Source)
		if err != nil {
			return nil, err
		}
		imageURL = image.DataURL()
	}

	logger.Info("Describing %s with %s", filepath.Base(job.Source), job.Model)
	completion, err := s.chat.Complete(ctx, openai.ChatRequest{
		Model:    job.Model,
		Messages: []openai.Message{openai.UserMessage(openai.TextPart(job.Prompt), openai.ImagePart(imageURL))},
	})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(completion.Content())

	header := "Image: " + job.Source + "\nModel: " + job.Model + "\nPrompt: " + job.Prompt
	artifact, err := saveText(s.store, job.Output, "analysis_result", header, text, job.Prompt, job.Model, start)
	if err != nil {
		return nil, err
	}
	return &TextResult{Text: text, Artifact: artifact}, nil
}
