package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCapabilities(t *testing.T) {
	f := newTestFactory(t)

	caps, ok := f.CapsOf("scene.probe")
	require.True(t, ok)
	assert.True(t, caps.Has(CapEvents|CapActivation|CapAsyncActivation|CapDisposable|CapReleasable))
	assert.False(t, caps.Has(CapUpdate))

	caps, ok = f.CapsOf("scene.worker")
	require.True(t, ok)
	assert.True(t, caps.Has(CapUpdate|CapAsyncUpdate|CapEvents))

	caps, ok = f.CapsOf("scene.marker")
	require.True(t, ok)
	assert.Zero(t, caps)

	_, ok = f.CapsOf("scene.missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"scene.SceneComponent", "scene.marker", "scene.pivot", "scene.probe", "scene.worker"}, f.Names())
}

func TestFactoryRejectsDuplicates(t *testing.T) {
	f := NewFactory()
	require.NoError(t, Register(f, func() *marker { return &marker{} }))
	assert.Error(t, Register(f, func() *marker { return &marker{} }))
	assert.Error(t, RegisterNamed(f, "scene.marker", func() *probe { return &probe{} }))
	assert.Panics(t, func() { MustRegister(f, func() *SceneComponent { return &SceneComponent{} }) })
}
