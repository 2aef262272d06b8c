package genrenet

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/tphakala/genrenet-go/internal/errors"
)

// loadLabels reads a label file with one class label per line. Blank lines
// are skipped and a leading UTF-8 BOM is ignored.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read label file: %w", err)).
			Component(componentGenreNet).
			Category(errors.CategoryLabelLoad).
			Context("label_path", path).
			Build()
	}

	labels, err := parseLabels(data)
	if err != nil {
		return nil, errors.New(err).
			Component(componentGenreNet).
			Category(errors.CategoryLabelLoad).
			Context("label_path", path).
			Build()
	}
	return labels, nil
}

func parseLabels(data []byte) ([]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		label := strings.TrimSpace(scanner.Text())
		if label == "" {
			continue
		}
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan label file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file contains no labels")
	}
	return labels, nil
}
