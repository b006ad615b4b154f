package models

import (
	"errors"
	"fmt"
	"sort"
)

// ModelName identifies an embedding model profile.
type ModelName string

const (
	TextEmbedding3Small ModelName = "text-embedding-3-small"
	TextEmbedding3Large ModelName = "text-embedding-3-large"
	TextEmbeddingAda002 ModelName = "text-embedding-ada-002"
)

// ErrUnknownModel is returned when a model name has no token limit.
var ErrUnknownModel = errors.New("unknown embedding model")

// modelTokenLimits is the maximum number of tokens each model accepts in
// a single request. It is never written after package initialization.
var modelTokenLimits = map[ModelName]int{
	TextEmbedding3Small: 8191,
	TextEmbedding3Large: 8191,
	TextEmbeddingAda002: 8191,
}

// TokenLimit returns the token limit for the given model.
func TokenLimit(name ModelName) (int, error) {
	limit, ok := modelTokenLimits[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return limit, nil
}

// ModelNames lists the known models in lexical order.
func ModelNames() []ModelName {
	names := make([]ModelName, 0, len(modelTokenLimits))
	for name := range modelTokenLimits {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
