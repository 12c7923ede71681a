package async

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/media"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/responses"
)

const videosEndpoint = "/videos"

// SubmitRequest describes one video generation job. At most one of ImageURL
// and ImagePath may be set.
type SubmitRequest struct {
	Prompt    string
	Model     string
	ImageURL  string
	ImagePath string
}

func (r SubmitRequest) validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("model is required")
	}
	if r.ImageURL != "" && r.ImagePath != "" {
		return errors.New("image URL and image path are mutually exclusive")
	}
	if r.ImageURL != "" && !responses.IsHTTPURL(r.ImageURL) {
		return fmt.Errorf("image URL %q is not an http(s) URL", r.ImageURL)
	}
	return nil
}

// Submit sends the creation request and returns the remote task. It never
// retries.
func (tm *TaskManager) Submit(ctx context.Context, req SubmitRequest) (*models.Task, error) {
	if err := req.validate(); err != nil {
		return nil, &SubmissionError{Err: err}
	}

	var raw client.RawResponse
	var err error
	switch {
	case req.ImagePath != "":
		err = tm.submitWithFile(ctx, req, &raw)
	case req.ImageURL != "":
		body := map[string]string{"model": req.Model, "prompt": req.Prompt, "input_reference": req.ImageURL}
		err = tm.client.Post(ctx, videosEndpoint, body, &raw)
	default:
		body := map[string]string{"model": req.Model, "prompt": req.Prompt}
		err = tm.client.Post(ctx, videosEndpoint, body, &raw)
	}
	if err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &SubmissionError{StatusCode: httpErr.StatusCode, Body: httpErr.Body, Err: err}
		}
		return nil, &SubmissionError{Err: err}
	}

	var created responses.VideoTask
	if err := responses.Decode(raw.Body, &created); err != nil {
		return nil, &SubmissionError{StatusCode: raw.StatusCode, Body: string(raw.Body), Err: err}
	}

	task := created.Task()
	if task.Status == models.TaskStatusUnknown {
		task.Status = models.TaskStatusQueued
	}
	logger.Info("Submitted task %s (model %s, status %s)", task.ID, req.Model, task.Status)
	return &task, nil
}

func (tm *TaskManager) submitWithFile(ctx context.Context, req SubmitRequest, raw *client.RawResponse) error {
	image, err := media.LoadImage(req.ImagePath)
	if err != nil {
		return err
	}
	logger.Debug("Uploading reference image %s (%s, %d bytes)", image.Name, image.MIMEType, image.Size())

	form := client.Form{
		Fields: [][2]string{{"model", req.Model}, {"prompt", req.Prompt}},
		Files: []client.FilePart{{
			Field:       "input_reference",
			FileName:    image.Name,
			ContentType: image.MIMEType,
			Content:     bytes.NewReader(image.Data),
		}},
	}
	return tm.client.PostMultipart(ctx, videosEndpoint, form, raw)
}
