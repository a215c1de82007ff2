package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/noctipede/models"
)

func writeTempSeed(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.txt")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp seed file: %v", err)
	}
	return path
}

func TestLoad_ParsesURLsSkippingCommentsAndBlanks(t *testing.T) {
	path := writeTempSeed(t, "# comment\nhttp://example.onion\n\nhttp://stats.i2p\n")

	urls, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"http://example.onion", "http://stats.i2p"}
	if len(urls) != len(want) {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestLoad_DedupsLines(t *testing.T) {
	path := writeTempSeed(t, "http://example.onion\nhttp://example.onion\n")
	urls, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(urls) != 1 {
		t.Errorf("urls = %v, want 1 deduped entry", urls)
	}
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	path := writeTempSeed(t, "not a url\nhttp://valid.onion\n")
	urls, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(urls) != 1 || urls[0] != "http://valid.onion" {
		t.Errorf("urls = %v, want [http://valid.onion]", urls)
	}
}

func TestLoad_MissingFileReturnsFatalError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err == nil {
		t.Fatal("expected error for missing seed file")
	}
	ce, ok := err.(*models.CrawlError)
	if !ok || ce.Severity() != models.SeverityFatal {
		t.Errorf("err = %v, want a fatal *models.CrawlError", err)
	}
}
