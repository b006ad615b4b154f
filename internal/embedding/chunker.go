package embedding

import (
	"errors"
	"fmt"
	"strings"

	"chunked-embedder/internal/models"
)

var (
	ErrInvalidTokenLimit = errors.New("token limit must be positive")
	ErrInvalidOverlap    = errors.New("overlap size must be non-negative and smaller than the token limit")
)

func validateWindow(maxTokenSize, overlapSize int) error {
	if maxTokenSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTokenLimit, maxTokenSize)
	}
	if overlapSize < 0 || overlapSize >= maxTokenSize {
		return fmt.Errorf("%w: overlap %d, limit %d", ErrInvalidOverlap, overlapSize, maxTokenSize)
	}
	return nil
}

// SplitContent plans the chunks for content. When the content fits in
// maxTokenSize tokens it is returned untouched as a single chunk, otherwise
// windows of at most maxTokenSize tokens are taken, each starting
// overlapSize tokens before the end of the previous one, and their tokens
// are joined with single spaces.
func SplitContent(content string, maxTokenSize, overlapSize int) ([]models.Chunk, error) {
	if err := validateWindow(maxTokenSize, overlapSize); err != nil {
		return nil, err
	}

	tokens := Tokenize(content)
	if len(tokens) <= maxTokenSize {
		return []models.Chunk{{Index: 0, Start: 0, End: len(tokens), Text: content}}, nil
	}
	return splitTokens(tokens, maxTokenSize, overlapSize), nil
}

// splitTokens expects 0 <= overlapSize < maxTokenSize.
func splitTokens(tokens []string, maxTokenSize, overlapSize int) []models.Chunk {
	var chunks []models.Chunk
	for i := 0; i < len(tokens); {
		end := min(i+maxTokenSize, len(tokens))
		chunks = append(chunks, models.Chunk{
			Index: len(chunks),
			Start: i,
			End:   end,
			Text:  strings.Join(tokens[i:end], " "),
		})
		// the window holding the last token closes the plan, anything after
		// it would only repeat overlap tokens
		if end == len(tokens) {
			break
		}
		i += (end - i) - overlapSize
	}
	return chunks
}
