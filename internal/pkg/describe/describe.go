// Package describe asks an external vision model for free-text metadata
// about a canonical image. Everything here is best-effort: callers must
// treat an empty result as "leave the fields blank", never as a reason to
// reject the image itself.
package describe

import (
	"context"
	"strings"
)

// Result is the free-text metadata produced for one image.
type Result struct {
	Description string
	Tags        []string
}

// Empty reports whether the provider produced nothing usable.
func (r Result) Empty() bool {
	return r.Description == "" && len(r.Tags) == 0
}

// Provider generates a description and tags for JPEG image bytes.
type Provider interface {
	Name() string
	Describe(ctx context.Context, imageData []byte) (Result, error)
}

// prompt matches the format the response parser expects.
const prompt = `Describe this image and suggest 5 relevant tags. Format: Description: [description] Tags: [tag1, tag2, tag3, tag4, tag5]`

// parseResponse extracts a Result from the model's free-text reply.
func parseResponse(content string) Result {
	var res Result

	body := content
	if idx := strings.Index(content, "Tags:"); idx >= 0 {
		body = content[:idx]
		for _, tag := range strings.Split(content[idx+len("Tags:"):], ",") {
			tag = strings.Trim(strings.TrimSpace(tag), "[].")
			if tag != "" {
				res.Tags = append(res.Tags, tag)
			}
		}
	}

	body = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), "Description:"))
	res.Description = strings.Trim(strings.TrimSpace(body), "[]")
	return res
}
