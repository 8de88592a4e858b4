package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.IsValidBlockID(AirBlockID), "воздух зарегистрирован всегда")
	assert.Error(t, r.Register(AirBlockID, Properties{Name: "NotAir"}))
	assert.Error(t, r.Register(TorchBlockID, Properties{Name: "Torch", Emission: 16}))
	assert.Error(t, r.Register(TorchBlockID, Properties{Name: "Torch", Emission: 14, Transparent: true}))
	assert.Error(t, r.Register(TreeBlockID, Properties{Name: "Tree", TransparentSolid: true}))

	require.NoError(t, r.Register(TorchBlockID, Properties{Name: "Torch", Emission: 14, TransparentSolid: true}))
	emission, ok := r.LightEmission(TorchBlockID)
	assert.True(t, ok)
	assert.Equal(t, uint8(14), emission)
}

func TestRegistry_UnknownBlockIsOpaque(t *testing.T) {
	r := NewRegistry()

	unknown := BlockID(4242)
	assert.False(t, r.IsValidBlockID(unknown))
	assert.False(t, r.IsTransparent(unknown))
	assert.False(t, r.IsTransparentSolid(unknown))
	_, ok := r.LightEmission(unknown)
	assert.False(t, ok)
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(GlowstoneBlockID, Properties{Name: "Glowstone", Emission: 15, TransparentSolid: true}))
	require.NoError(t, r.Register(StoneBlockID, Properties{Name: "Stone"}))

	assert.Equal(t, []BlockID{AirBlockID, StoneBlockID, GlowstoneBlockID}, r.IDs())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.yaml")
	content := `
blocks:
  - id: 400
    name: Crystal
    emission: 9
    transparent_solid: true
  - id: 401
    name: Ice
    transparent: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r := NewRegistry()
	n, err := LoadYAML(r, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	crystal, ok := r.Get(400)
	require.True(t, ok)
	assert.Equal(t, "Crystal", crystal.Name)
	assert.Equal(t, uint8(9), crystal.Emission)
	assert.True(t, crystal.TransparentSolid)
	assert.True(t, r.IsTransparent(401))
}

func TestLoadYAML_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocks:\n  - id: 5\n    emission: 3\n"), 0o644))

	_, err := LoadYAML(NewRegistry(), path)
	assert.Error(t, err, "блок без имени должен отклоняться")

	_, err = LoadYAML(NewRegistry(), filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}
