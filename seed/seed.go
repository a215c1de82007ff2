// Package seed loads the initial list of sites the Gate dispatches at
// startup, one URL per line, matching the newline-delimited seed file
// format spec.md §4.D describes.
package seed

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/use-agent/noctipede/models"
)

// Load reads URLs from path, one per line, skipping blank lines and
// lines starting with '#'. Malformed URLs are skipped with a warning
// rather than aborting the whole load — one bad line in an operator-
// maintained seed file shouldn't block every other site.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewFatalCrawlError(models.ErrInvalidConfig, fmt.Sprintf("opening seed file %q", path), err)
	}
	defer f.Close()

	var urls []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed, err := url.Parse(line)
		if err != nil || parsed.Host == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, models.NewFatalCrawlError(models.ErrInvalidConfig, fmt.Sprintf("reading seed file %q", path), err)
	}

	return urls, nil
}
