// Package media reads local input files and turns them into the inline
// encodings vendors accept: raw base64 for Gemini parts and data URLs for
// chat-completions content.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kelsos/mediagen/internal/logger"
)

// LargeFileThreshold is the size above which inline uploads are likely to be
// rejected by the vendor.
const LargeFileThreshold = 20 * 1024 * 1024

// DefaultAudioMIME is used when an audio file's extension is not recognized.
const DefaultAudioMIME = "audio/mp3"

var audioMIMETypes = map[string]string{
	".mp3":  "audio/mp3",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".mpeg": "audio/mpeg",
	".mpga": "audio/mpeg",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// ErrNotDataURL is returned when a string is not a base64 data URL.
var ErrNotDataURL = errors.New("not a base64 data URL")

// File is a local input loaded into memory.
type File struct {
	Path     string
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the number of bytes read.
func (f *File) Size() int64 {
	return int64(len(f.Data))
}

// Base64 returns the standard base64 encoding of the content.
func (f *File) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// DataURL returns the content as a data URL.
func (f *File) DataURL() string {
	return EncodeDataURL(f.MIMEType, f.Data)
}

// Load reads path and detects its MIME type from the content.
func Load(path string) (*File, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	return &File{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: DetectMIME(data),
		Data:     data,
	}, nil
}

// LoadImage reads path and rejects content that is not an image.
func LoadImage(path string) (*File, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(f.MIMEType, "image/") {
		return nil, fmt.Errorf("%s is not an image (detected %s)", path, f.MIMEType)
	}
	return f, nil
}

// LoadAudio reads path and assigns its MIME type from the file extension.
// Content sniffing is unreliable across audio containers, so the extension wins.
func LoadAudio(path string) (*File, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	if len(data) > LargeFileThreshold {
		logger.Warn("Audio file %s is %.1f MB; inline uploads above 20 MB may be rejected",
			path, float64(len(data))/1024/1024)
	}
	return &File{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: AudioMIME(path),
		Data:     data,
	}, nil
}

// AudioMIME maps an audio file extension to the MIME type vendors expect.
func AudioMIME(path string) string {
	if mime, ok := audioMIMETypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return DefaultAudioMIME
}

// DetectMIME sniffs data and returns its MIME type without parameters.
func DetectMIME(data []byte) string {
	mime := mimetype.Detect(data).String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mime
}

// Extension returns the conventional file extension for data, with the dot.
func Extension(data []byte) string {
	return mimetype.Detect(data).Extension()
}

// EncodeDataURL builds a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data URL into its MIME type and payload.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL payload: %w", err)
	}
	return strings.TrimSuffix(header, ";base64"), data, nil
}

func read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return data, nil
}
