package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/tphakala/genrenet-go/internal/staging"
)

// InvalidExtensionMessage is returned to clients for unsupported uploads.
const InvalidExtensionMessage = "Use .wav, .mp3, .mp4, or .m4a files."

// AllowedExtensions lists the accepted upload extensions.
var AllowedExtensions = staging.Extensions

func matchExtension(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, ext := range AllowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext, true
		}
	}
	return "", false
}

// extensionHint returns a short, log-safe description of the rejected name.
func extensionHint(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == "":
		return "none"
	case len(ext) > 10:
		return ext[:10]
	default:
		return ext
	}
}
