package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/taskflow/pkg/mirror"
	"github.com/dukex/taskflow/pkg/mirror/file"
	"github.com/dukex/taskflow/pkg/mirror/redis"
	"github.com/spf13/afero"
)

var supportedMirrorProviders = []string{"memory", "file", "redis", "rediss"}

// NewMirrorStore picks the document store from the URL scheme. An empty URL keeps
// documents in memory.
func NewMirrorStore(ctx context.Context, fs afero.Fs, mirrorURL string) (mirror.Store, error) {
	switch parseMirrorProvider(mirrorURL) {
	case "memory":
		return mirror.NewMemoryStore(), nil
	case "redis", "rediss":
		return redis.New(ctx, mirrorURL)
	case "file":
		return file.New(fs, mirrorURL)
	default:
		return nil, fmt.Errorf("unsupported mirror url: %s", mirrorURL)
	}
}

func parseMirrorProvider(mirrorURL string) string {
	if mirrorURL == "" {
		return "memory"
	}

	provider, _, found := strings.Cut(mirrorURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedMirrorProviders {
		if provider == supported {
			return provider
		}
	}

	return ""
}
