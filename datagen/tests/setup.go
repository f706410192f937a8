package tests

import (
	"os"
	"path/filepath"
	"testing"

	"datagen_platform/datagen/migrations"
	"datagen_platform/datagen/services"
	"datagen_platform/datagen/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	service *services.DatagenService
	api     chi.Router
	storage storage.Storage
	db      *gorm.DB
}

const testApiKey = "test_service_key_123"

func setupTestEnvWithVariables(t *testing.T, variables services.Variables) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := migrations.Migrate(db); err != nil {
		t.Fatal(err)
	}

	tmpDir := t.TempDir()
	storagePath := filepath.Join(tmpDir, "/storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	secret := []byte("290zcv02ai249")

	service := services.NewDatagenService(db, store, nil, nil, variables, secret)

	t.Cleanup(service.Shutdown)

	return &testEnv{service: service, api: service.Routes(), storage: store, db: db}
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithVariables(t, services.Variables{
		ApiKey:            testApiKey,
		MaxConcurrentRuns: 2,
	})
}

func (t *testEnv) newClient() client {
	return client{api: t.api, apiKey: testApiKey}
}

// anonClient has no service key attached, for checking that the endpoints
// reject unauthenticated requests.
func (t *testEnv) anonClient() client {
	return client{api: t.api}
}
