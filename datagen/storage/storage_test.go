package storage

import (
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSharedDiskReadWrite(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	if err := store.Write("runs/abc/report.json", strings.NewReader(`{"ok": true}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	exists, err := store.Exists("runs/abc/report.json")
	if err != nil || !exists {
		t.Fatalf("expected file to exist, got exists=%v err=%v", exists, err)
	}

	reader, err := store.Read("runs/abc/report.json")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != `{"ok": true}` {
		t.Fatalf("unexpected contents: %q", data)
	}

	size, err := store.Size("runs/abc/report.json")
	if err != nil || size != int64(len(data)) {
		t.Fatalf("expected size %d, got %d (err=%v)", len(data), size, err)
	}
}

func TestSharedDiskAppend(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	if err := store.Append("log.txt", strings.NewReader("first\n")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.Append("log.txt", strings.NewReader("second\n")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	data, err := ReadAll(store, "log.txt")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Fatalf("unexpected contents: %q", data)
	}
}

func TestSharedDiskListAndDelete(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	for _, name := range []string{"a.csv", "b.csv"} {
		if err := store.Write("data/"+name, strings.NewReader("text,label\n")); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	names, err := store.List("data")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"a.csv", "b.csv"}) {
		t.Fatalf("unexpected listing: %v", names)
	}

	if err := store.Delete("data"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	exists, err := store.Exists("data")
	if err != nil || exists {
		t.Fatalf("expected directory to be gone, got exists=%v err=%v", exists, err)
	}
}

func TestSharedDiskZip(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	if err := store.Write("runs/xyz/generated_data/news/train/train.csv", strings.NewReader("text,label\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := store.Zip("runs/xyz/generated_data"); err != nil {
		t.Fatalf("zip failed: %v", err)
	}

	exists, err := store.Exists("runs/xyz/generated_data.zip")
	if err != nil || !exists {
		t.Fatalf("expected zip archive, got exists=%v err=%v", exists, err)
	}
	size, err := store.Size("runs/xyz/generated_data.zip")
	if err != nil || size == 0 {
		t.Fatalf("expected non-empty archive, got size=%d err=%v", size, err)
	}
}

func TestRunPaths(t *testing.T) {
	runId := uuid.New()

	if got := TrainFile(runId, "news"); got != "runs/"+runId.String()+"/generated_data/news/train/train.csv" {
		t.Fatalf("unexpected train path: %v", got)
	}
	if got := TestFile(runId, "news"); got != "runs/"+runId.String()+"/generated_data/news/test/test.csv" {
		t.Fatalf("unexpected test path: %v", got)
	}
	if got := ReportFile(runId); got != "runs/"+runId.String()+"/report.json" {
		t.Fatalf("unexpected report path: %v", got)
	}
}
