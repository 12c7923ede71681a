package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/config"
	"github.com/kelsos/mediagen/internal/gemini"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/media"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/openai"
	"github.com/kelsos/mediagen/internal/responses"
	"github.com/kelsos/mediagen/internal/storage"
)

// AudioFormat selects the request shape used for audio understanding.
type AudioFormat string

const (
	AudioFormatNative AudioFormat = "native"
	AudioFormatChat   AudioFormat = "chat"
)

const audioSystemPrompt = "You are a helpful assistant that can analyze audio content."

// AudioJob asks Question about the audio at Source, a local path or, for
// the chat format, an http(s) URL.
type AudioJob struct {
	Source   string
	Question string
	Model    string
	Format   AudioFormat
	Output   string
}

// TextResult is a model answer and the file it was saved to.
type TextResult struct {
	Text     string
	Artifact *models.Artifact
}

// AudioService transcribes or analyzes audio.
type AudioService struct {
	config *config.Config
	chat   *openai.Client
	gemini *gemini.Client
	store  *storage.Store
}

func NewAudioService(cfg *config.Config) *AudioService {
	return &AudioService{
		config: cfg,
		chat:   openai.NewClient(client.NewAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)),
		gemini: gemini.NewClient(client.NewAPIClient(cfg.GeminiBaseURL, cfg.APIKey, cfg.HTTPTimeout)),
		store:  storage.New(cfg.OutputDir),
	}
}

// Analyze sends the audio and question, then saves the answer as text.
func (s *AudioService) Analyze(ctx context.Context, job AudioJob) (*TextResult, error) {
	start := time.Now()
	if job.Model == "" {
		job.Model = s.config.AudioModel
	}
	if job.Format == "" {
		job.Format = AudioFormatNative
	}

	var text string
	var err error
	switch job.Format {
	case AudioFormatNative:
		text, err = s.analyzeNative(ctx, job)
	case AudioFormatChat:
		text, err = s.analyzeChat(ctx, job)
	default:
		return nil, fmt.Errorf("unknown audio format %q (use %s or %s)", job.Format, AudioFormatNative, AudioFormatChat)
	}
	if err != nil {
		return nil, err
	}

	header := fmt.Sprintf("Audio: %s\nModel: %s\nQuestion: %s", filepath.Base(job.Source), job.Model, job.Question)
	artifact, err := saveText(s.store, job.Output, "audio_analysis", header, text, job.Question, job.Model, start)
	if err != nil {
		return nil, err
	}
	return &TextResult{Text: text, Artifact: artifact}, nil
}

func (s *AudioService) analyzeNative(ctx context.Context, job AudioJob) (string, error) {
	if responses.IsHTTPURL(job.Source) {
		return "", fmt.Errorf("the native format needs a local audio file, got %s", job.Source)
	}
	audio, err := media.LoadAudio(job.Source)
	if err != nil {
		return "", err
	}
	logger.Info("Analyzing %s (%s) with %s", audio.Name, audio.MIMEType, job.Model)
	return s.gemini.Analyze(ctx, job.Model, job.Question, audio)
}

func (s *AudioService) analyzeChat(ctx context.Context, job AudioJob) (string, error) {
	source := job.Source
	if !responses.IsHTTPURL(source) {
		audio, err := media.LoadAudio(job.Source)
		if err != nil {
			return "", err
		}
		source = audio.DataURL()
	}
	logger.Info("Analyzing %s with %s (chat format)", filepath.Base(job.Source), job.Model)

	temperature := gemini.AnalysisTemperature
	completion, err := s.chat.Complete(ctx, openai.ChatRequest{
		Model: job.Model,
		Messages: []openai.Message{
			openai.SystemMessage(audioSystemPrompt),
			openai.UserMessage(openai.TextPart(job.Question), openai.ImagePart(source)),
		},
		Temperature: &temperature,
		MaxTokens:   gemini.AnalysisMaxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(completion.Content()), nil
}

func saveText(store *storage.Store, output, prefix, header, text, prompt, model string, start time.Time) (*models.Artifact, error) {
	path, err := store.Path(output, prefix, ".txt")
	if err != nil {
		return nil, err
	}
	size, err := store.WriteText(path, header, text)
	if err != nil {
		return nil, err
	}
	logger.Info("Saved answer to %s", path)

	return &models.Artifact{
		Path:     path,
		Size:     size,
		MIMEType: "text/plain",
		Prompt:   prompt,
		Model:    model,
		Elapsed:  time.Since(start),
	}, nil
}
