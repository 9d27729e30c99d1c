package gateway

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/batchline/runtime/pkg/batch"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")

	records := []batch.Raw{
		{"id": 1, "name": "Alice", "value": 100},
		{"id": 2, "name": "Bob", "value": 2.5, "tags": []interface{}{"a", "b"}},
	}

	if ok := WriteBatch(path, records); !ok {
		t.Fatal("WriteBatch returned false")
	}

	got := ReadBatch(path)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	// JSON round-trips numbers as float64.
	if got[0]["id"] != float64(1) || got[0]["name"] != "Alice" || got[0]["value"] != float64(100) {
		t.Errorf("unexpected first record: %v", got[0])
	}
	if got[1]["value"] != 2.5 {
		t.Errorf("unexpected second record value: %v", got[1]["value"])
	}
}

func TestSaveWritesIndentedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")

	if err := Save(path, []batch.Raw{{"id": 1}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if !strings.Contains(string(data), "\n  {") {
		t.Errorf("expected 2-space indentation, got:\n%s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "batch.json")

	if err := Save(path, []batch.Raw{{"id": 1}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := ReadBatch(path); len(got) != 1 {
		t.Errorf("expected 1 record after nested save, got %d", len(got))
	}
}

func TestReadBatchMissingFileYieldsEmpty(t *testing.T) {
	got := ReadBatch(filepath.Join(t.TempDir(), "missing.json"))
	if got == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}

func TestReadBatchMalformedYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("this is not json"), 0644); err != nil {
		t.Fatal(err)
	}

	got := ReadBatch(path)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty slice for malformed file, got %v", got)
	}
}

func TestWriteBatchReportsFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// Parent "directory" is a regular file, so the write cannot succeed.
	if ok := WriteBatch(filepath.Join(blocker, "batch.json"), []batch.Raw{{"id": 1}}); ok {
		t.Error("expected WriteBatch to return false")
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
	if notFound.Path != path {
		t.Errorf("NotFoundError.Path = %q, want %q", notFound.Path, path)
	}
}

func TestLoadProcessed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")

	written := []batch.Processed{
		{RecordID: "1", DisplayName: "ALICE", NumericValue: 100, IsProcessed: true},
		{RecordID: float64(2), DisplayName: "BOB", NumericValue: 2.5, IsProcessed: true},
	}
	if err := Save(path, written); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := LoadProcessed(path)
	if err != nil {
		t.Fatalf("LoadProcessed() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].DisplayName != "ALICE" || got[0].NumericValue != 100 || !got[0].IsProcessed {
		t.Errorf("unexpected first record: %+v", got[0])
	}
	if got[1].NumericValue != 2.5 {
		t.Errorf("unexpected second record value: %v", got[1].NumericValue)
	}
}

func TestLoadProcessedMissingFile(t *testing.T) {
	_, err := LoadProcessed(filepath.Join(t.TempDir(), "missing.json"))

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}

func TestLoadMalformedReportsPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	content := "[\n  {\"id\": 1,}\n]"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var malformed *MalformedBatchError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedBatchError, got %T: %v", err, err)
	}
	if malformed.Line != 2 {
		t.Errorf("Line = %d, want 2", malformed.Line)
	}
	if malformed.Column <= 0 {
		t.Errorf("Column = %d, want > 0", malformed.Column)
	}
	if !strings.Contains(malformed.Error(), "line 2") {
		t.Errorf("error message missing position: %q", malformed.Error())
	}
}

func TestLoadTopLevelObjectIsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "object.json")
	if err := os.WriteFile(path, []byte(`{"id": 1}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var malformed *MalformedBatchError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedBatchError for top-level object, got %T: %v", err, err)
	}
}

func TestLoadNullYieldsEmptySlice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "null.json")
	if err := os.WriteFile(path, []byte("null"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected non-nil empty slice, got %v", got)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	records := []batch.Raw{
		{"id": 1, "name": "Alice", "value": 100},
		{"id": 2, "name": "Bob", "value": 2.5},
	}

	tests := []struct {
		name     string
		filename string
	}{
		{name: "gzip", filename: "batch.json.gz"},
		{name: "zstd", filename: "batch.json.zst"},
		{name: "lz4", filename: "batch.json.lz4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)

			if err := Save(path, records); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			// Stored bytes must not be plain JSON.
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if len(data) == 0 || data[0] == '[' {
				t.Error("expected compressed content on disk")
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(got) != len(records) {
				t.Fatalf("expected %d records, got %d", len(records), len(got))
			}
			if got[0]["name"] != "Alice" || got[1]["value"] != 2.5 {
				t.Errorf("round trip changed records: %v", got)
			}
		})
	}
}

func TestLoadCorruptedCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json.gz")
	if err := os.WriteFile(path, []byte("definitely not gzip"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var malformed *MalformedBatchError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedBatchError, got %T: %v", err, err)
	}
	if malformed.Line != 0 {
		t.Errorf("Line = %d, want 0 for non-JSON failure", malformed.Line)
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "batch.json", want: "none"},
		{path: "batch.json.gz", want: "gzip"},
		{path: "out/records.json.zst", want: "zstd"},
		{path: "records.lz4", want: "lz4"},
		{path: "archive.gzip", want: "none"},
		{path: "", want: "none"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ForPath(tt.path).Name(); got != tt.want {
				t.Errorf("ForPath(%q).Name() = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestChecksumFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.json")

	if err := os.WriteFile(path, []byte(`[{"id": 1}]`), 0644); err != nil {
		t.Fatal(err)
	}

	first, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile() error = %v", err)
	}
	if len(first) != 16 {
		t.Errorf("checksum %q is not 16 hex chars", first)
	}

	again, err := ChecksumFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Errorf("checksum changed without content change: %q vs %q", first, again)
	}

	if err := os.WriteFile(path, []byte(`[{"id": 2}]`), 0644); err != nil {
		t.Fatal(err)
	}
	changed, err := ChecksumFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Error("checksum unchanged after content change")
	}

	if _, err := ChecksumFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	} else {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("expected *NotFoundError, got %T", err)
		}
	}
}

func TestLineCol(t *testing.T) {
	data := []byte("[\n  {\"id\": 1}\n]")

	tests := []struct {
		name     string
		offset   int64
		wantLine int
		wantCol  int
	}{
		{name: "zero offset", offset: 0, wantLine: 0, wantCol: 0},
		{name: "first byte", offset: 1, wantLine: 1, wantCol: 1},
		{name: "start of second line", offset: 3, wantLine: 2, wantCol: 1},
		{name: "past end", offset: 999, wantLine: 0, wantCol: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, col := lineCol(data, tt.offset)
			if line != tt.wantLine || col != tt.wantCol {
				t.Errorf("lineCol(%d) = (%d, %d), want (%d, %d)", tt.offset, line, col, tt.wantLine, tt.wantCol)
			}
		})
	}
}
