package responses

import (
	"encoding/json"
	"strings"

	"github.com/kelsos/mediagen/internal/models"
)

// VideoTask is the body returned by the video job API for both creation and
// status queries.
type VideoTask struct {
	ID        string          `json:"id" validate:"required"`
	Object    string          `json:"object,omitempty"`
	Status    string          `json:"status,omitempty"`
	Progress  *FlexFloat      `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	Model     string          `json:"model,omitempty"`
	Seconds   FlexString      `json:"seconds,omitempty"`
	Size      string          `json:"size,omitempty"`
	VideoURL  string          `json:"video_url,omitempty" validate:"omitempty,http_url"`
	CreatedAt int64           `json:"created_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// ErrorMessage flattens the vendor error, which is either a string or an
// object with a message field.
func (v *VideoTask) ErrorMessage() string {
	if len(v.Error) == 0 || string(v.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(v.Error, &obj); err == nil && obj.Message != "" {
		if obj.Code != "" {
			return obj.Code + ": " + obj.Message
		}
		return obj.Message
	}
	return strings.TrimSpace(string(v.Error))
}

// Task converts the wire shape into the local mirror.
func (v *VideoTask) Task() models.Task {
	task := models.Task{
		ID:        v.ID,
		Status:    models.ParseTaskStatus(v.Status),
		RawStatus: v.Status,
		VideoURL:  v.VideoURL,
		Model:     v.Model,
		Seconds:   string(v.Seconds),
		Size:      v.Size,
		Error:     v.ErrorMessage(),
	}
	if v.Progress != nil {
		p := float64(*v.Progress)
		task.Progress = &p
	}
	return task
}

// ContentReference is returned by content endpoints that answer with a
// pointer to the media instead of the media itself.
type ContentReference struct {
	URL string `json:"url" validate:"required,http_url"`
}
