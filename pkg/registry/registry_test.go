package registry

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDForGolden(t *testing.T) {
	// Values must never change: generated files on disk reference them.
	tests := map[string]string{
		"Core":            "{504E03C0-6643-55C2-87DE-3E0A7C2B6E4C}",
		"Gameplay":        "{CEC07C86-12E6-552C-8572-3DFFA002CBCB}",
		"Assembly-CSharp": "{CF4AD3D5-6645-5FCF-8425-DE75F87708C2}",
	}

	r := New()
	for name, want := range tests {
		assert.Equal(t, want, r.BracedFor(name), name)
	}
}

func TestIDForStableAcrossRegistries(t *testing.T) {
	a, b := New(), New()
	for _, name := range []string{"Core", "Gameplay", "Editor.Tools", ""} {
		assert.Equal(t, a.IDFor(name), b.IDFor(name), name)
		assert.Equal(t, a.IDFor(name), a.IDFor(name), name)
	}
}

func TestIDForDistinctNames(t *testing.T) {
	r := New()
	assert.NotEqual(t, r.IDFor("Core"), r.IDFor("core"))
	assert.Equal(t, uuid.Version(5), r.IDFor("Core").Version())
}

func TestNamespaceChangesIDs(t *testing.T) {
	other := NewWithNamespace(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	assert.NotEqual(t, New().IDFor("Core"), other.IDFor("Core"))
}

func TestRegistryGrowsOnly(t *testing.T) {
	r := New()
	r.IDFor("B")
	r.IDFor("A")
	r.IDFor("B")

	require.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"A", "B"}, r.Names())
}

func TestRegistryConcurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 32)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = r.IDFor("Core")
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, r.Len())
}

func TestBraced(t *testing.T) {
	id := uuid.MustParse("fae04ec0-301f-11d3-bf4b-00c04f79efbc")
	assert.Equal(t, "{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}", Braced(id))
}
