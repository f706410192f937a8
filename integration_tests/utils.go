package integrationtests

import (
	"log/slog"
	"os"
	"testing"

	"datagen_platform/client"
	"datagen_platform/datagen/config"

	"github.com/google/uuid"
)

func getClient(t *testing.T) *client.DatagenClient {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	c := client.New("http://localhost:8000")
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		c.UseApiKey(apiKey)
	}

	if err := c.Health(); err != nil {
		t.Fatal(err)
	}
	return c
}

func randomName(base string) string {
	return base + "-" + uuid.New().String()
}

func mockRunConfig(name string) config.DatagenConfig {
	return config.DatagenConfig{
		RunName:   name,
		Templates: []string{"Classify the following text as {}:"},
		Vocabularies: []config.VocabularyOptions{
			{Name: "news", Labels: []string{"World", "Sports", "Business", "Sci/Tech"}, Repetitions: 4},
		},
		Branches: config.BranchOptions{
			Difficulties: []string{"college", "high school"},
			Clarities:    []string{"clear", "ambiguous"},
		},
		Generation:           config.GenerationOptions{NumGenerations: 2, BatchSize: 2},
		LLM:                  config.LLMConfig{Provider: "mock"},
		TrainSamplesPerLabel: 4,
	}
}
