package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"venuefinds/internal/domain"
	"venuefinds/internal/schema"
)

const confidenceKey = "field_confidence"

var ErrMalformedResponse = errors.New("malformed extraction response")

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		// Some models still wrap the object in a sentence.
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start >= 0 && end > start {
			text = text[start : end+1]
		}
	}
	return text
}

// parseExtractionResponse reads the model's JSON object into a candidate.
// Unknown and internal keys are dropped, as are null values the model gave
// no confidence for. Confidence ranges are left to the merger to enforce.
func parseExtractionResponse(text string, reg *schema.Registry) (domain.Candidate, []string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		return domain.Candidate{}, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	confidences := domain.Confidences{}
	if rawConf, ok := raw[confidenceKey]; ok && rawConf != nil {
		m, ok := rawConf.(map[string]any)
		if !ok {
			return domain.Candidate{}, nil, fmt.Errorf("%w: %s is %T, want object", ErrMalformedResponse, confidenceKey, rawConf)
		}
		for field, v := range m {
			f, ok := v.(float64)
			if !ok {
				return domain.Candidate{}, nil, fmt.Errorf("%w: confidence of %q is %T, want number", ErrMalformedResponse, field, v)
			}
			confidences[field] = f
		}
	}
	delete(raw, confidenceKey)

	c := domain.Candidate{Record: domain.NewRecord()}
	var dropped []string
	for key, value := range raw {
		f, known := reg.Lookup(key)
		if !known || f.Internal {
			dropped = append(dropped, key)
			continue
		}
		conf, hasConf := confidences[key]
		if value == nil && (!hasConf || conf == 0) {
			dropped = append(dropped, key)
			continue
		}
		c.Values[key] = value
		if hasConf {
			c.Confidence[key] = conf
		}
	}
	sort.Strings(dropped)
	return c, dropped, nil
}
