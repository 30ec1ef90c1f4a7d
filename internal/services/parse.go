package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tbourn/go-idea-generator/internal/domain"
)

var fenceRE = regexp.MustCompile("(?m)^```(?:json)?\\s*|\\s*```$")

// StripFences removes Markdown code-fence lines around a reply.
func StripFences(text string) string {
	return strings.TrimSpace(fenceRE.ReplaceAllString(strings.TrimSpace(text), ""))
}

// ParseIdeas decodes a model reply into raw idea records. Code fences are
// stripped first; when prose surrounds the array, the first [ that opens a
// decodable array is used and anything after its closing ] is ignored.
func ParseIdeas(text string) ([]domain.RawIdea, error) {
	body := StripFences(text)
	if body == "" {
		return nil, ErrEmptyResponse
	}

	var out []domain.RawIdea
	err := json.Unmarshal([]byte(body), &out)
	if err == nil {
		return out, nil
	}

	for open := strings.IndexByte(body, '['); open >= 0; {
		var inner []domain.RawIdea
		if derr := json.NewDecoder(strings.NewReader(body[open:])).Decode(&inner); derr == nil {
			return inner, nil
		}
		next := strings.IndexByte(body[open+1:], '[')
		if next < 0 {
			break
		}
		open += next + 1
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}
