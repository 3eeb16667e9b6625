package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sentinel-edge/models"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
)

// DefaultWeaviateClass is the class holding reference passages
const DefaultWeaviateClass = "ReferencePassage"

// WeaviateConfig configures the Weaviate knowledge base
type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string
	Class  string
}

// WeaviateReferenceRepository searches reference passages stored in Weaviate.
// Search relies on the class vectorizer; SearchSimilar takes a precomputed
// embedding.
type WeaviateReferenceRepository struct {
	client *weaviate.Client
	class  string
}

// NewWeaviateReferenceRepository creates a Weaviate-backed reference repository
func NewWeaviateReferenceRepository(cfg WeaviateConfig) (*WeaviateReferenceRepository, error) {
	if cfg.Host == "" {
		return nil, errors.New("weaviate host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Class == "" {
		cfg.Class = DefaultWeaviateClass
	}

	clientCfg := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme}
	if cfg.APIKey != "" {
		clientCfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return &WeaviateReferenceRepository{client: client, class: cfg.Class}, nil
}

func (r *WeaviateReferenceRepository) fields() []graphql.Field {
	return []graphql.Field{
		{Name: "category"},
		{Name: "content"},
		{Name: "sourceDocument"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
}

// Search implements service.ReferenceSearcher with a nearText query
func (r *WeaviateReferenceRepository) Search(ctx context.Context, query string, k int) ([]models.ReferenceMatch, error) {
	nearText := (&graphql.NearTextArgumentBuilder{}).WithConcepts([]string{query})

	result, err := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithNearText(nearText).
		WithFields(r.fields()...).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search failed: %s", result.Errors[0].Message)
	}
	return parseWeaviateMatches(result.Data["Get"], r.class), nil
}

// SearchSimilar implements service.VectorSearcher with a nearVector query
func (r *WeaviateReferenceRepository) SearchSimilar(ctx context.Context, embedding []float32, k int) ([]models.ReferenceMatch, error) {
	nearVector := (&graphql.NearVectorArgumentBuilder{}).WithVector(embedding)

	result, err := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithNearVector(nearVector).
		WithFields(r.fields()...).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate vector search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate vector search failed: %s", result.Errors[0].Message)
	}
	return parseWeaviateMatches(result.Data["Get"], r.class), nil
}

// parseWeaviateMatches reads {class: [{category, content, ...}]} out of the
// Get section of a GraphQL response
func parseWeaviateMatches(get any, class string) []models.ReferenceMatch {
	data, ok := get.(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := data[class].([]interface{})
	if !ok {
		return nil
	}

	matches := make([]models.ReferenceMatch, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var m models.ReferenceMatch
		m.Category, _ = obj["category"].(string)
		m.Content, _ = obj["content"].(string)
		m.Source, _ = obj["sourceDocument"].(string)
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				m.Distance = d
			}
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		matches = append(matches, m)
	}
	return matches
}
