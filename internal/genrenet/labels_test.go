package genrenet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/genrenet-go/internal/errors"
)

func TestParseLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"simple", "blues\nclassical\ncountry\n", []string{"blues", "classical", "country"}, false},
		{"crlf and blanks", "blues\r\n\r\n hip hop \r\n", []string{"blues", "hip hop"}, false},
		{"bom", "\xef\xbb\xbfjazz\nmetal", []string{"jazz", "metal"}, false},
		{"empty", "\n\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseLabels([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadLabels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("pop\nreggae\nrock\n"), 0o600))

	labels, err := loadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pop", "reggae", "rock"}, labels)

	_, err = loadLabels(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
}
