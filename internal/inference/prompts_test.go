package inference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPrompts(t *testing.T) {
	p := DefaultPrompts()

	ex, err := p.Existence(testAddress)
	require.NoError(t, err)
	assert.Contains(t, ex, `"`+testAddress+`"`)
	assert.Contains(t, ex, `Respond with only "true"`)

	own, err := p.Ownership(testAddress)
	require.NoError(t, err)
	assert.Contains(t, own, testAddress)
	assert.Contains(t, own, "Username: @handle")
	assert.Contains(t, own, "Confidence: [High|Medium|Low|None]")
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty_path_uses_defaults", func(t *testing.T) {
		p, err := LoadPrompts("")
		require.NoError(t, err)
		ex, err := p.Existence("abc")
		require.NoError(t, err)
		assert.Contains(t, ex, "Search X")
	})

	t.Run("partial_override", func(t *testing.T) {
		path := filepath.Join(dir, "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("existence: |\n  Has anyone posted {{.Address}}? Answer true or false.\n"), 0o600))

		p, err := LoadPrompts(path)
		require.NoError(t, err)

		ex, err := p.Existence("abc")
		require.NoError(t, err)
		assert.Equal(t, "Has anyone posted abc? Answer true or false.\n", ex)

		own, err := p.Ownership("abc")
		require.NoError(t, err)
		assert.Contains(t, own, "Username: @handle")
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadPrompts(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read prompts file")
	})

	t.Run("bad_yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("existence: [unclosed"), 0o600))
		_, err := LoadPrompts(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse prompts file")
	})

	t.Run("bad_template", func(t *testing.T) {
		path := filepath.Join(dir, "tmpl.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ownership: \"{{.Address\"\n"), 0o600))
		_, err := LoadPrompts(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse ownership template")
	})

	t.Run("unknown_field", func(t *testing.T) {
		path := filepath.Join(dir, "field.yaml")
		require.NoError(t, os.WriteFile(path, []byte("existence: \"{{.Wallet}}\"\n"), 0o600))
		p, err := LoadPrompts(path)
		require.NoError(t, err)
		_, err = p.Existence("abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "render existence prompt")
	})
}
