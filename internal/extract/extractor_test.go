package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"docforge/internal/domain/pipeline"
	"docforge/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name    string
	content []byte
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = f.Write(e.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newExtractor(t *testing.T, mutate func(*Config)) *Extractor {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	return e
}

func TestExtractPreservesArchiveOrderAndFiltersExtensions(t *testing.T) {
	archive := buildZip(t,
		entry{"src/Zeta.java", []byte("class Zeta {}")},
		entry{"README.md", []byte("# readme")},
		entry{"src/Alpha.java", []byte("class Alpha {}")},
		entry{"src/Upper.JAVA", []byte("class Upper {}")},
	)

	units, err := newExtractor(t, nil).Extract(archive)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "src/Zeta.java", units[0].Name)
	assert.Equal(t, "src/Alpha.java", units[1].Name)
	assert.Equal(t, "src/Upper.JAVA", units[2].Name)
	assert.Equal(t, "class Alpha {}", units[1].Content)
}

func TestExtractSkipsIgnoredAndDirectoryEntries(t *testing.T) {
	archive := buildZip(t,
		entry{"src/", nil},
		entry{"__MACOSX/src/._A.java", []byte{0x00, 0x05}},
		entry{"target/Gen.java", []byte("class Gen {}")},
		entry{"src/A.java", []byte("class A {}")},
	)

	units, err := newExtractor(t, nil).Extract(archive)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "src/A.java", units[0].Name)
}

func TestExtractCorruptArchive(t *testing.T) {
	_, err := newExtractor(t, nil).Extract([]byte("definitely not a zip"))
	assert.ErrorIs(t, err, pipeline.ErrCorruptArchive)
}

func TestExtractEmptyArchive(t *testing.T) {
	archive := buildZip(t, entry{"notes.txt", []byte("nothing here")})
	_, err := newExtractor(t, nil).Extract(archive)
	assert.ErrorIs(t, err, pipeline.ErrEmptyArchive)
}

func TestExtractDuplicateNamesAreCorrupt(t *testing.T) {
	archive := buildZip(t,
		entry{"src/A.java", []byte("class A {}")},
		entry{"./src/A.java", []byte("class A2 {}")},
	)
	_, err := newExtractor(t, nil).Extract(archive)
	assert.ErrorIs(t, err, pipeline.ErrCorruptArchive)
}

func TestExtractMaxFiles(t *testing.T) {
	archive := buildZip(t,
		entry{"A.java", []byte("class A {}")},
		entry{"B.java", []byte("class B {}")},
	)
	_, err := newExtractor(t, func(c *Config) { c.MaxFiles = 1 }).Extract(archive)
	assert.ErrorIs(t, err, pipeline.ErrCorruptArchive)
}

func TestExtractKeepsOversizeEntriesAsRejectedUnits(t *testing.T) {
	archive := buildZip(t,
		entry{"Big.java", bytes.Repeat([]byte("x"), 64)},
		entry{"Small.java", []byte("class S {}")},
	)
	units, err := newExtractor(t, func(c *Config) { c.MaxFileBytes = 32 }).Extract(archive)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Big.java", units[0].Name)
	assert.Empty(t, units[0].Content)
	assert.ErrorIs(t, units[0].Rejected, pipeline.ErrUnitTooLarge)
	assert.Equal(t, "Small.java", units[1].Name)
	assert.NoError(t, units[1].Rejected)
}

func TestExtractDecodesCharsets(t *testing.T) {
	archive := buildZip(t,
		entry{"Bom.java", append([]byte{0xEF, 0xBB, 0xBF}, []byte("class Bom {}")...)},
		entry{"Latin.java", []byte("// caf\xe9\nclass Latin {}")},
	)
	units, err := newExtractor(t, nil).Extract(archive)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "class Bom {}", units[0].Content)
	assert.Equal(t, "// café\nclass Latin {}", units[1].Content)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.FallbackCharset = "no-such-charset"
	_, err = New(cfg, nil)
	require.Error(t, err)
}

func TestNewNormalizesExtensions(t *testing.T) {
	e := newExtractor(t, func(c *Config) { c.Extensions = []string{"KT", " .java "} })
	assert.True(t, e.eligible("a/B.kt"))
	assert.True(t, e.eligible("C.java"))
	assert.False(t, e.eligible("D.go"))
}
