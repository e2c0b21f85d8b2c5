package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"carimages/internal/fetch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExt = []string{".jpg", ".jpeg", ".png", ".webp"}

const wave = `description: Wave 10 classic sports cars
min_bytes: 8000
images:
  porsche-356-speedster.jpg: https://images.unsplash.com/photo-1?w=1200
  bmw-m1.jpg: BMW_M1
  ferrari-360cs.jpg:
    - Ferrari_360_Challenge_Stradale
    - Ferrari_360
  alfa-33.jpg: [Alfa_Romeo_33_Stradale]
`

func TestParse_PreservesOrderAndKinds(t *testing.T) {
	c, err := Parse("wave10", []byte(wave), testExt)
	require.NoError(t, err)

	assert.Equal(t, "wave10", c.Name)
	assert.Equal(t, "Wave 10 classic sports cars", c.Description)
	assert.Equal(t, int64(8000), c.EffectiveMinBytes(5000))

	want := Entries{
		{File: "porsche-356-speedster.jpg", Source: fetch.DirectSource("https://images.unsplash.com/photo-1?w=1200")},
		{File: "bmw-m1.jpg", Source: fetch.TopicSource("BMW_M1")},
		{File: "ferrari-360cs.jpg", Source: fetch.TopicSource("Ferrari_360_Challenge_Stradale", "Ferrari_360")},
		{File: "alfa-33.jpg", Source: fetch.TopicSource("Alfa_Romeo_33_Stradale")},
	}
	assert.Equal(t, want, c.Images)
}

func TestParse_DefaultMinBytes(t *testing.T) {
	c, err := Parse("w", []byte("images:\n  a.jpg: Topic\n"), testExt)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), c.EffectiveMinBytes(5000))
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no images":         "description: empty\n",
		"images not a map":  "images: [a.jpg]\n",
		"empty source":      "images:\n  a.jpg: \"\"\n",
		"empty topic list":  "images:\n  a.jpg: []\n",
		"nested mapping":    "images:\n  a.jpg: {url: x}\n",
		"path separator":    "images:\n  ../a.jpg: Topic\n",
		"sub directory":     "images:\n  cars/a.jpg: Topic\n",
		"dot dot":           "images:\n  ..: Topic\n",
		"bad extension":     "images:\n  a.gif: Topic\n",
		"duplicate":         "images:\n  a.jpg: Topic\n  A.JPG: Other\n",
		"url without host":  "images:\n  a.jpg: https://\n",
		"negative min":      "min_bytes: -1\nimages:\n  a.jpg: Topic\n",
		"malformed yaml":    "images: [\n",
		"invalid min_bytes": "min_bytes: lots\nimages:\n  a.jpg: Topic\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("bad", []byte(data), testExt)
			assert.Error(t, err)
		})
	}
}

func TestParse_DuplicateIsTyped(t *testing.T) {
	_, err := Parse("dup", []byte("images:\n  a.jpg: A\n  a.jpg: B\n"), testExt)
	assert.ErrorIs(t, err, ErrDuplicateFile)
}

func TestParse_AnyExtensionWhenUnrestricted(t *testing.T) {
	_, err := Parse("w", []byte("images:\n  a.gif: Topic\n"), nil)
	assert.NoError(t, err)
}

func TestTasks(t *testing.T) {
	c, err := Parse("wave10", []byte(wave), testExt)
	require.NoError(t, err)

	tasks := c.Tasks(filepath.Join("public", "cars"))
	require.Len(t, tasks, 4)
	assert.Equal(t, filepath.Join("public", "cars", "porsche-356-speedster.jpg"), tasks[0].Target)
	assert.False(t, tasks[0].Source.IsLookup())
	assert.Equal(t, filepath.Join("public", "cars", "ferrari-360cs.jpg"), tasks[2].Target)
	assert.Equal(t, []string{"Ferrari_360_Challenge_Stradale", "Ferrari_360"}, tasks[2].Source.Topics)
}

func writeCatalog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, "batch3.yml", wave)

	c, err := Load(path, testExt)
	require.NoError(t, err)
	assert.Equal(t, "batch3", c.Name)

	_, err = Load(filepath.Join(dir, "missing.yml"), testExt)
	assert.Error(t, err)
}

func TestLoadDir_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "wave10.yml", wave)
	writeCatalog(t, dir, "batch3.yaml", "images:\n  a.jpg: A\n")
	writeCatalog(t, dir, "README.md", "not a catalog")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yml"), 0o750))

	catalogs, err := LoadDir(dir, testExt)
	require.NoError(t, err)
	require.Len(t, catalogs, 2)
	assert.Equal(t, "batch3", catalogs[0].Name)
	assert.Equal(t, "wave10", catalogs[1].Name)
}

func TestLoadDir_InvalidCatalogFails(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "broken.yml", "images:\n  a.gif: A\n")

	_, err := LoadDir(dir, testExt)
	assert.Error(t, err)

	_, err = LoadDir(filepath.Join(dir, "nope"), testExt)
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	all := []Catalog{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	got, err := Select(all, []string{"c", "a.yml"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Name)
	assert.Equal(t, "a", got[1].Name)

	_, err = Select(all, []string{"zzz"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoverage(t *testing.T) {
	c, err := Parse("wave10", []byte(wave), testExt)
	require.NoError(t, err)
	out := t.TempDir()
	// catalog min_bytes is 8000
	require.NoError(t, os.WriteFile(filepath.Join(out, "bmw-m1.jpg"), make([]byte, 9000), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(out, "alfa-33.jpg"), make([]byte, 6000), 0o600))

	present, missing := c.Coverage(out, 5000)
	assert.Equal(t, 1, present)
	assert.Equal(t, []string{"porsche-356-speedster.jpg", "ferrari-360cs.jpg", "alfa-33.jpg"}, missing)
}

func TestShippedCatalogsLoad(t *testing.T) {
	catalogs, err := LoadDir(filepath.Join("..", "..", "catalogs"), testExt)
	require.NoError(t, err)
	require.Len(t, catalogs, 33)

	byName := make(map[string]Catalog, len(catalogs))
	for _, c := range catalogs {
		assert.NotEmpty(t, c.Images, c.Name)
		byName[c.Name] = c
	}
	assert.Len(t, byName["wave10"].Images, 30)
	assert.Equal(t, fetch.TopicSource("Ferrari_360", "Ferrari_360_Modena"), byName["batch3_missing"].Images[0].Source)
}
