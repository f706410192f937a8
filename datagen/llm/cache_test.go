package llm

import (
	"context"
	"fmt"
	"testing"

	"datagen_platform/datagen/templates"

	"github.com/stretchr/testify/assert"
)

type countingProvider struct {
	calls int
	fail  bool
}

func (p *countingProvider) Generate(ctx context.Context, req *Request) (RawGenerations, error) {
	p.calls++
	if p.fail {
		return nil, fmt.Errorf("backend down")
	}
	return RawGenerations{{`{"input_text": "t", "label": "World", "misleading_label": "Sports"}`}}, nil
}

func cacheRequest(difficulty string) *Request {
	return &Request{
		Tasks: []templates.TaskDescription{
			{Task: "Classify news article as World or Sports", Labels: []string{"World", "Sports"}, Vocab: "news_topic"},
		},
		Language:       "english",
		Difficulty:     difficulty,
		Clarity:        "clear",
		NumGenerations: 1,
	}
}

func TestCacheHit(t *testing.T) {
	inner := &countingProvider{}
	provider, err := WithCache(inner, 8)
	assert.NoError(t, err)
	assert.NotNil(t, provider)

	for i := 0; i < 3; i++ {
		outputs, err := provider.Generate(context.Background(), cacheRequest("college"))
		assert.NoError(t, err)
		assert.NotEmpty(t, outputs)
	}

	assert.Equal(t, 1, inner.calls, "identical requests should hit the cache")
}

func TestCacheMissOnDifferentConfig(t *testing.T) {
	inner := &countingProvider{}
	provider, err := WithCache(inner, 8)
	assert.NoError(t, err)

	_, err = provider.Generate(context.Background(), cacheRequest("college"))
	assert.NoError(t, err)
	_, err = provider.Generate(context.Background(), cacheRequest("PhD"))
	assert.NoError(t, err)

	assert.Equal(t, 2, inner.calls, "different configs should miss the cache")
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	inner := &countingProvider{fail: true}
	provider, err := WithCache(inner, 8)
	assert.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := provider.Generate(context.Background(), cacheRequest("college"))
		assert.Error(t, err)
	}

	assert.Equal(t, 2, inner.calls, "failures should not be cached")
}
