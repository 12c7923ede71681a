package openai

import (
	"fmt"
	"regexp"
	"strings"
)

// Ratios accepted by chat-completions image models as a prompt suffix.
var ChatImageRatios = []string{"2:3", "3:2", "1:1"}

const DefaultChatImageRatio = "2:3"

var ratioSuffixPattern = regexp.MustCompile(`【\d+:\d+】\s*$`)

// WithRatioSuffix appends the aspect ratio marker, e.g. "a fox【2:3】". A
// prompt that already ends with a marker is returned unchanged.
func WithRatioSuffix(prompt, ratio string) (string, error) {
	if ratio == "" {
		ratio = DefaultChatImageRatio
	}
	if !isChatImageRatio(ratio) {
		return "", fmt.Errorf("unsupported ratio %q (allowed: %s)", ratio, strings.Join(ChatImageRatios, ", "))
	}
	if ratioSuffixPattern.MatchString(prompt) {
		return prompt, nil
	}
	return strings.TrimSpace(prompt) + "【" + ratio + "】", nil
}

func isChatImageRatio(ratio string) bool {
	for _, r := range ChatImageRatios {
		if r == ratio {
			return true
		}
	}
	return false
}
