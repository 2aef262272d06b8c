package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/genrenet-go/internal/buildinfo"
	"github.com/tphakala/genrenet-go/internal/conf"
)

func TestRootCommand_Version(t *testing.T) {
	root := RootCommand(&conf.Settings{}, buildinfo.New("v9.9.9", "2026-10-01"))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "GenreNet-Go v9.9.9 (built 2026-10-01")
}

func TestRootCommand_ClassifyRequiresFile(t *testing.T) {
	root := RootCommand(&conf.Settings{}, buildinfo.New("", ""))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"classify"})

	assert.Error(t, root.Execute())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{}, buildinfo.New("", ""))

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "classify", "version"})

	// serve flags are usable on the root command since serve is the default
	assert.NotNil(t, root.Flags().Lookup("port"))
	assert.NotNil(t, root.PersistentFlags().Lookup("backend"))
}
