package uml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTripsPerRoot(t *testing.T) {
	dir := t.TempDir()
	cache := OpenCache(filepath.Join(dir, ".meta"))

	_, ok, err := cache.Get("/p")
	require.NoError(t, err)
	assert.False(t, ok, "no cache yet")

	g := Graph{
		Nodes: []Node{
			{ID: "model.Person", Name: "Person", Kind: "class", Path: "/p/src/model/Person.java", IsAbstract: true,
				Methods: []Method{{Signature: "String getName()", Name: "getName", ReturnType: "String", Visibility: "public"}}},
			{ID: "model.Student", Name: "Student", Kind: "class", Path: "/p/src/model/Student.java"},
		},
		Edges: []Edge{edge("model.Student", EdgeExtends, "model.Person")},
	}
	require.NoError(t, cache.Put("/p", g))

	got, ok, err := cache.Get("/p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, g.NodeIDs(), got.NodeIDs())
	assert.Equal(t, g.Edges, got.Edges)
	person, _ := got.Node("model.Person")
	assert.True(t, person.IsAbstract)
	require.Len(t, person.Methods, 1)
	assert.Equal(t, "getName", person.Methods[0].Name)

	_, ok, err = cache.Get("/other")
	require.NoError(t, err)
	assert.False(t, ok, "cache belongs to a different project")

	require.NoError(t, cache.Drop())
	_, err = os.Stat(cache.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestCacheRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	cache := OpenCache(dir)
	require.NoError(t, os.WriteFile(cache.Path(), []byte{0xc1, 0xc1}, 0o644))

	_, ok, err := cache.Get("/p")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNilCacheIsInert(t *testing.T) {
	var cache *Cache
	require.NoError(t, cache.Put("/p", Graph{}))
	_, ok, err := cache.Get("/p")
	require.NoError(t, err)
	assert.False(t, ok)
}
