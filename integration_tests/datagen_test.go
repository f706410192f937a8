package integrationtests

import (
	"archive/zip"
	"path/filepath"
	"testing"
	"time"

	"datagen_platform/datagen/schema"
)

func TestGenerateDataset(t *testing.T) {
	c := getClient(t)

	run, _, err := c.CreateRun(mockRunConfig(randomName("datagen")))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := run.DeleteRun()
		if err != nil {
			t.Fatal(err)
		}
	})

	if err := run.Start(); err != nil {
		t.Fatal(err)
	}

	if err := run.AwaitCompletion(100 * time.Second); err != nil {
		t.Fatal(err)
	}

	report, err := run.Report()
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalExamples == 0 {
		t.Fatal("expected generated examples in report")
	}
	if len(report.Datasets) != 1 {
		t.Fatalf("expected 1 dataset, got %d", len(report.Datasets))
	}

	counts, err := run.LabelCounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(counts.Vocabs["news"]) != 4 {
		t.Fatalf("expected counts for all 4 labels, got %v", counts.Vocabs["news"])
	}

	archivePath := filepath.Join(t.TempDir(), "data.zip")
	if err := run.Download(archivePath); err != nil {
		t.Fatal(err)
	}
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	if len(reader.File) == 0 {
		t.Fatal("expected files in downloaded archive")
	}
}

func TestListRuns(t *testing.T) {
	c := getClient(t)

	run, _, err := c.CreateRun(mockRunConfig(randomName("datagen-list")))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := run.DeleteRun()
		if err != nil {
			t.Fatal(err)
		}
	})

	runs, err := c.ListRuns()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, info := range runs {
		if info.RunId == run.RunId() {
			found = true
			if info.Status != schema.Pending {
				t.Fatalf("expected pending status for new run, got %v", info.Status)
			}
		}
	}
	if !found {
		t.Fatal("created run not present in run list")
	}
}

func TestRestartCompletedRun(t *testing.T) {
	c := getClient(t)

	run, _, err := c.CreateRun(mockRunConfig(randomName("datagen-restart")))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := run.DeleteRun()
		if err != nil {
			t.Fatal(err)
		}
	})

	if err := run.Start(); err != nil {
		t.Fatal(err)
	}
	if err := run.AwaitCompletion(100 * time.Second); err != nil {
		t.Fatal(err)
	}

	report1, err := run.Report()
	if err != nil {
		t.Fatal(err)
	}

	// Rerunning a finished run regenerates its artifacts in place.
	if err := run.Start(); err != nil {
		t.Fatal(err)
	}
	if err := run.AwaitCompletion(100 * time.Second); err != nil {
		t.Fatal(err)
	}

	report2, err := run.Report()
	if err != nil {
		t.Fatal(err)
	}
	if report2.TotalExamples != report1.TotalExamples {
		t.Fatalf("expected identical example count on rerun, got %d and %d", report1.TotalExamples, report2.TotalExamples)
	}
}
