package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelsos/mediagen/internal/config"
	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/services"
	"github.com/kelsos/mediagen/internal/tui"
	"github.com/kelsos/mediagen/internal/utils"
)

const defaultVisionPrompt = "Describe this image in detail."

func printArtifact(a *models.Artifact) {
	fmt.Printf("Saved %s (%s) in %s\n", a.Path, download.HumanSize(a.Size), a.Elapsed.Round(time.Millisecond))
	if a.SourceURL != "" {
		fmt.Printf("Source: %s\n", a.SourceURL)
	}
}

// reportOutcome prints the result of a video run. A failed run becomes an
// error naming the stage that stopped it.
func reportOutcome(outcome *services.Outcome) error {
	if outcome.Task != nil {
		fmt.Printf("Task: %s (%s)\n", outcome.Task.ID, outcome.Task.Status)
	}
	if !outcome.Succeeded() {
		return errors.New(outcome.Diagnostic())
	}
	printArtifact(outcome.Artifact)
	if outcome.SidecarPath != "" {
		fmt.Printf("Metadata: %s\n", outcome.SidecarPath)
	}
	return nil
}

func runVideoWithMonitor(ctx context.Context, svc *services.VideoService, job services.VideoJob, model string) (*services.Outcome, error) {
	logPath, err := logger.InitFileOnly()
	if err != nil {
		return nil, err
	}
	defer func() {
		logger.Close()
		logger.Init()
		logger.Info("Monitor log written to %s", logPath)
	}()

	return tui.NewVideoMonitor(svc, job, model).Run(ctx)
}

func main() {
	utils.LoadEnvironment()
	logger.Init()

	cfg := config.NewConfig()
	cfg.LoadFromEnvironment()

	var (
		apiKey    string
		debug     bool
		noSidecar bool
	)

	rootCmd := &cobra.Command{
		Use:   "mediagen",
		Short: "A CLI tool for generating videos, images and media analyses",
		Long: `mediagen submits generation jobs to OpenAI-compatible and Gemini-compatible
endpoints, waits for asynchronous tasks to finish and downloads the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				logger.SetDebug(true)
			}
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
			if noSidecar {
				cfg.SaveSidecar = false
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if !cfg.HasAPIKey() {
				logger.Warn("No API key configured; set MEDIAGEN_API_KEY or pass --api-key")
			}
			return nil
		},
	}

	// Global flags override the environment
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default: $MEDIAGEN_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "OpenAI-compatible API base URL")
	rootCmd.PersistentFlags().StringVar(&cfg.GeminiBaseURL, "gemini-base-url", cfg.GeminiBaseURL, "Gemini-compatible API base URL")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for generated files")
	rootCmd.PersistentFlags().DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "Timeout for a single HTTP request")
	rootCmd.PersistentFlags().BoolVar(&noSidecar, "no-sidecar", false, "Do not write JSON metadata next to artifacts")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// Video command
	var (
		videoModel     string
		videoImageURL  string
		videoImagePath string
		videoOutput    string
		videoTUI       bool
	)
	videoCmd := &cobra.Command{
		Use:   "video <prompt>",
		Short: "Generate a video through the asynchronous task API",
		Long: `Submit a video task, poll its status until it completes, fails or the poll
timeout elapses, then download the video.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if videoModel == "" {
				videoModel = cfg.VideoModel
			}
			job := services.VideoJob{
				Prompt:    strings.Join(args, " "),
				Model:     videoModel,
				ImageURL:  videoImageURL,
				ImagePath: videoImagePath,
				Output:    videoOutput,
			}
			svc := services.NewVideoService(cfg)

			var outcome *services.Outcome
			if videoTUI {
				var err error
				if outcome, err = runVideoWithMonitor(cmd.Context(), svc, job, videoModel); err != nil {
					return err
				}
			} else {
				outcome = svc.Run(cmd.Context(), job)
			}
			return reportOutcome(outcome)
		},
	}
	videoCmd.Flags().StringVarP(&videoModel, "model", "m", "", "Video model (default: $MEDIAGEN_VIDEO_MODEL or "+cfg.VideoModel+")")
	videoCmd.Flags().StringVar(&videoImageURL, "image-url", "", "Reference image URL for image-to-video")
	videoCmd.Flags().StringVar(&videoImagePath, "image", "", "Local reference image for image-to-video")
	videoCmd.Flags().StringVar(&videoOutput, "output", "", "Output file (default: timestamped name in the output directory)")
	videoCmd.Flags().DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Delay between status queries")
	videoCmd.Flags().DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "Give up polling after this long")
	videoCmd.Flags().StringVar((*string)(&cfg.VideoFormat), "video-format", string(cfg.VideoFormat), "Where the finished video is read from: inline or content")
	videoCmd.Flags().BoolVar(&videoTUI, "tui", false, "Show a live dashboard while the job runs")
	videoCmd.MarkFlagsMutuallyExclusive("image-url", "image")

	// Video through a single chat completion
	var (
		syncModel     string
		syncImageURLs []string
		syncStream    bool
		syncOutput    string
	)
	videoSyncCmd := &cobra.Command{
		Use:   "video-sync <prompt>",
		Short: "Generate a video through chat completions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := services.SyncVideoJob{
				Prompt:    strings.Join(args, " "),
				Model:     syncModel,
				ImageURLs: syncImageURLs,
				Stream:    syncStream,
				Output:    syncOutput,
			}
			if syncStream {
				job.OnDelta = func(delta string) { fmt.Print(delta) }
			}

			result, err := services.NewVideoSyncService(cfg).Generate(cmd.Context(), job)
			if syncStream {
				fmt.Println()
			}
			if err != nil {
				if result != nil && !syncStream {
					fmt.Println(result.Content)
				}
				return err
			}
			printArtifact(result.Artifact)
			return nil
		},
	}
	videoSyncCmd.Flags().StringVarP(&syncModel, "model", "m", "", "Video chat model (default: "+cfg.VideoModel+")")
	videoSyncCmd.Flags().StringSliceVar(&syncImageURLs, "image-url", nil, "Reference image URL (repeatable)")
	videoSyncCmd.Flags().BoolVar(&syncStream, "stream", true, "Stream the answer while the video is generated")
	videoSyncCmd.Flags().StringVar(&syncOutput, "output", "", "Output file (default: timestamped name in the output directory)")

	// Image commands
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Generate or edit images",
	}

	var (
		geminiModel  string
		geminiRatio  string
		geminiSize   string
		geminiInputs []string
		geminiOutput string
	)
	imageGeminiCmd := &cobra.Command{
		Use:   "gemini <prompt>",
		Short: "Generate or edit an image with the Gemini native API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := services.NewImageService(cfg).Gemini(cmd.Context(), services.GeminiImageJob{
				Prompt:      strings.Join(args, " "),
				Model:       geminiModel,
				AspectRatio: geminiRatio,
				ImageSize:   geminiSize,
				Inputs:      geminiInputs,
				Output:      geminiOutput,
			})
			if err != nil {
				return err
			}
			printArtifact(artifact)
			return nil
		},
	}
	imageGeminiCmd.Flags().StringVarP(&geminiModel, "model", "m", "", "Image model (default: "+cfg.ImageModel+")")
	imageGeminiCmd.Flags().StringVar(&geminiRatio, "aspect-ratio", "", "Aspect ratio, e.g. 16:9 (default: 1:1)")
	imageGeminiCmd.Flags().StringVar(&geminiSize, "size", "", "Image size: 1K, 2K or 4K")
	imageGeminiCmd.Flags().StringSliceVarP(&geminiInputs, "input", "i", nil, "Input image to edit (repeatable)")
	imageGeminiCmd.Flags().StringVar(&geminiOutput, "output", "", "Output file (default: timestamped name in the output directory)")

	var (
		chatModel  string
		chatRatio  string
		chatRefs   []string
		chatOutput string
	)
	imageChatCmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Generate images with a chat-completions image model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifacts, err := services.NewImageService(cfg).Chat(cmd.Context(), services.ChatImageJob{
				Prompt:        strings.Join(args, " "),
				Model:         chatModel,
				Ratio:         chatRatio,
				ReferenceURLs: chatRefs,
				Output:        chatOutput,
			})
			for _, artifact := range artifacts {
				printArtifact(artifact)
			}
			return err
		},
	}
	imageChatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Chat image model (default: "+cfg.ChatModel+")")
	imageChatCmd.Flags().StringVar(&chatRatio, "ratio", "", "Aspect ratio suffix: 2:3, 3:2 or 1:1 (default: 2:3)")
	imageChatCmd.Flags().StringSliceVar(&chatRefs, "ref", nil, "Reference image URL (repeatable)")
	imageChatCmd.Flags().StringVar(&chatOutput, "output", "", "Output file (default: timestamped name in the output directory)")

	var (
		fluxModel  string
		fluxRatio  string
		fluxInput  string
		fluxMask   string
		fluxOutput string
	)
	imageFluxCmd := &cobra.Command{
		Use:   "flux <prompt>",
		Short: "Generate or edit an image with the images API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := services.NewImageService(cfg).Flux(cmd.Context(), services.FluxImageJob{
				Prompt:      strings.Join(args, " "),
				Model:       fluxModel,
				AspectRatio: fluxRatio,
				Input:       fluxInput,
				Mask:        fluxMask,
				Output:      fluxOutput,
			})
			if err != nil {
				return err
			}
			printArtifact(artifact)
			return nil
		},
	}
	imageFluxCmd.Flags().StringVarP(&fluxModel, "model", "m", "", "Images model (default: "+cfg.FluxModel+")")
	imageFluxCmd.Flags().StringVar(&fluxRatio, "aspect-ratio", "", "Aspect ratio, e.g. 2:3")
	imageFluxCmd.Flags().StringVarP(&fluxInput, "input", "i", "", "Image to edit")
	imageFluxCmd.Flags().StringVar(&fluxMask, "mask", "", "Mask for the edit")
	imageFluxCmd.Flags().StringVar(&fluxOutput, "output", "", "Output file (default: timestamped name in the output directory)")

	imageCmd.AddCommand(imageGeminiCmd, imageChatCmd, imageFluxCmd)

	// Audio command
	var (
		audioModel  string
		audioFormat string
		audioOutput string
	)
	audioCmd := &cobra.Command{
		Use:   "audio <file> <question>",
		Short: "Ask a question about an audio file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := services.NewAudioService(cfg).Analyze(cmd.Context(), services.AudioJob{
				Source:   args[0],
				Question: strings.Join(args[1:], " "),
				Model:    audioModel,
				Format:   services.AudioFormat(audioFormat),
				Output:   audioOutput,
			})
			if err != nil {
				return err
			}
			fmt.Println(result.Text)
			printArtifact(result.Artifact)
			return nil
		},
	}
	audioCmd.Flags().StringVarP(&audioModel, "model", "m", "", "Audio model (default: "+cfg.AudioModel+")")
	audioCmd.Flags().StringVar(&audioFormat, "format", string(services.AudioFormatNative), "Request format: native or chat")
	audioCmd.Flags().StringVar(&audioOutput, "output", "", "Output file (default: timestamped name in the output directory)")

	// Vision command
	var (
		visionModel  string
		visionOutput string
	)
	visionCmd := &cobra.Command{
		Use:   "vision <image> [prompt]",
		Short: "Describe an image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := defaultVisionPrompt
			if len(args) > 1 {
				prompt = strings.Join(args[1:], " ")
			}
			result, err := services.NewVisionService(cfg).Describe(cmd.Context(), services.VisionJob{
				Source: args[0],
				Prompt: prompt,
				Model:  visionModel,
				Output: visionOutput,
			})
			if err != nil {
				return err
			}
			fmt.Println(result.Text)
			printArtifact(result.Artifact)
			return nil
		},
	}
	visionCmd.Flags().StringVarP(&visionModel, "model", "m", "", "Vision model (default: "+cfg.VisionModel+")")
	visionCmd.Flags().StringVar(&visionOutput, "output", "", "Output file (default: timestamped name in the output directory)")

	// Add subcommands
	rootCmd.AddCommand(videoCmd, videoSyncCmd, imageCmd, audioCmd, visionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Execute the root command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.Fatal("Command failed: %v", err)
	}
}
