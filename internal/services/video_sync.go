package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/config"
	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/openai"
	"github.com/kelsos/mediagen/internal/responses"
	"github.com/kelsos/mediagen/internal/storage"
)

// ErrNoVideoURL is returned when a chat answer carries no video link.
var ErrNoVideoURL = errors.New("no video URL in response")

// SyncVideoJob generates a video through a single chat completion.
type SyncVideoJob struct {
	Prompt    string
	Model     string
	ImageURLs []string
	Stream    bool
	Output    string
	// OnDelta receives streamed text as it arrives.
	OnDelta func(string)
}

// SyncVideoResult is the chat answer and, when a link was found, the video.
type SyncVideoResult struct {
	Content  string
	VideoURL string
	Artifact *models.Artifact
}

// VideoSyncService generates videos through chat completions, where the
// answer text eventually contains the video link.
type VideoSyncService struct {
	config     *config.Config
	chat       *openai.Client
	downloader *download.Downloader
	store      *storage.Store
}

func NewVideoSyncService(cfg *config.Config) *VideoSyncService {
	apiClient := client.NewAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)

	return &VideoSyncService{
		config:     cfg,
		chat:       openai.NewClient(apiClient),
		downloader: download.NewDownloader(apiClient.StreamingHTTPClient(), cfg.ChunkSize),
		store:      storage.New(cfg.OutputDir),
	}
}

// Generate sends the prompt, extracts the video link and downloads it.
func (s *VideoSyncService) Generate(ctx context.Context, job SyncVideoJob) (*SyncVideoResult, error) {
	start := time.Now()
	if job.Model == "" {
		job.Model = s.config.VideoModel
	}

	parts := []openai.ContentPart{openai.TextPart(job.Prompt)}
	for _, u := range job.ImageURLs {
		parts = append(parts, openai.ImagePart(u))
	}
	req := openai.ChatRequest{Model: job.Model, Messages: []openai.Message{openai.UserMessage(parts...)}}

	logger.Info("Requesting video from %s (stream=%t)", job.Model, job.Stream)
	var content string
	if job.Stream {
		text, err := s.chat.StreamChat(ctx, req, job.OnDelta)
		if err != nil {
			return nil, err
		}
		content = text
	} else {
		completion, err := s.chat.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		content = completion.Content()
	}

	result := &SyncVideoResult{Content: content, VideoURL: responses.VideoURL(content)}
	if result.VideoURL == "" {
		return result, ErrNoVideoURL
	}
	logger.Info("Video URL: %s", result.VideoURL)

	path, err := s.store.Path(job.Output, "video", ".mp4")
	if err != nil {
		return result, err
	}
	fetched, err := s.downloader.Fetch(ctx, download.Request{URL: result.VideoURL, Path: path})
	if err != nil {
		return result, err
	}

	result.Artifact = &models.Artifact{
		Path:      fetched.Path,
		Size:      fetched.Size,
		MIMEType:  fetched.ContentType,
		Prompt:    job.Prompt,
		Model:     job.Model,
		SourceURL: fetched.SourceURL,
		Elapsed:   time.Since(start),
	}
	writeSidecar(s.config, s.store, "video-sync", result.Artifact)
	return result, nil
}

func writeSidecar(cfg *config.Config, store *storage.Store, kind string, artifact *models.Artifact) {
	if !cfg.SaveSidecar {
		return
	}
	if _, err := store.WriteSidecar(kind, *artifact, nil); err != nil {
		logger.Warn("Failed to write sidecar for %s: %v", artifact.Path, err)
	}
}

func trimForLog(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
