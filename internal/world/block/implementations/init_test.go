package implementations

import (
	"testing"

	"github.com/annel0/voxel-light/internal/world/block"
	"github.com/stretchr/testify/assert"
)

func TestDefaultRegistry_LightProperties(t *testing.T) {
	r := NewDefaultRegistry()

	assert.True(t, r.IsTransparent(block.AirBlockID), "воздух прозрачен")
	assert.True(t, r.IsTransparent(block.GlassBlockID), "стекло прозрачно")
	assert.False(t, r.IsTransparent(block.StoneBlockID), "камень непрозрачен")

	emission, ok := r.LightEmission(block.TorchBlockID)
	assert.True(t, ok)
	assert.Equal(t, uint8(14), emission)
	assert.True(t, r.IsTransparentSolid(block.TorchBlockID))
	assert.False(t, r.IsTransparent(block.TorchBlockID))

	_, ok = r.LightEmission(block.DirtBlockID)
	assert.False(t, ok, "земля не светится")

	// Все источники должны быть transparent-solid и непрозрачны
	for _, id := range r.IDs() {
		p, _ := r.Get(id)
		if p.IsLightSource() {
			assert.True(t, p.TransparentSolid, "источник %s должен сохранять свет", p.Name)
			assert.False(t, p.Transparent, "источник %s не может быть прозрачным", p.Name)
		}
	}
}
