package caddy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-proxy/aegis/internal/models"
)

func TestMaterializeAll(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(dir)

	paths, err := m.MaterializeAll([]models.SecurityRuleSet{
		{Name: "owasp-crs", Content: "SecRuleEngine On\n"},
		{Name: "pending", SourceURL: "https://example.com/rules.conf"}, // not fetched yet
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, filepath.Join(dir, "owasp-crs.conf"), paths["owasp-crs"])

	content, err := os.ReadFile(paths["owasp-crs"])
	require.NoError(t, err)
	require.Equal(t, "SecRuleEngine On\n", string(content))
}

func TestMaterializeAll_UnsafeNameRejected(t *testing.T) {
	m := NewMaterializer(t.TempDir())
	_, err := m.MaterializeAll([]models.SecurityRuleSet{
		{Name: "../escape", Content: "x"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestMaterializeAll_Overwrites(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(dir)

	_, err := m.MaterializeAll([]models.SecurityRuleSet{{Name: "crs", Content: "old"}})
	require.NoError(t, err)
	paths, err := m.MaterializeAll([]models.SecurityRuleSet{{Name: "crs", Content: "new"}})
	require.NoError(t, err)

	content, err := os.ReadFile(paths["crs"])
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}
