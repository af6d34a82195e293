package keyword

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldText(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text string
		out  string
	}{
		{text: "", out: ""},
		{text: "Have A Great Day", out: "have a great day"},
		{text: "Gdańsk", out: "gdansk"},
		{text: "I WILL KÍLL YOU!", out: "i will kill you!"},
		{text: "Hello, โลก!", out: "hello, โลก!"},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, FoldText(fix.text))
	}
}

func TestTokenizeText(t *testing.T) {
	assert := assert.New(t)

	assert.Empty(TokenizeText(""))
	assert.Equal([]string{"hello", "gdansk", "2024"}, TokenizeText("Hello, Gdańsk! 2024"))
}

func TestDenylistMatch(t *testing.T) {
	assert := assert.New(t)

	dl := DefaultDenylist()
	term, ok := dl.Match("I will kill you")
	assert.True(ok)
	assert.Equal("kill", term)

	_, ok = dl.Match("have a great day")
	assert.False(ok)

	_, ok = dl.Match("")
	assert.False(ok)

	// substring semantics: terms match inside longer words
	_, ok = dl.Match("Skills")
	assert.True(ok)
}

func TestDenylistAccentFolding(t *testing.T) {
	assert := assert.New(t)

	// by default only case is ignored
	dl := DefaultDenylist()
	assert.False(dl.FoldsAccents())
	_, ok := dl.Match("I WILL KÍLL YOU")
	assert.False(ok)
	_, ok = dl.Match("I WILL KILL YOU")
	assert.True(ok)

	folding := dl.WithAccentFolding()
	term, ok := folding.Match("I WILL KÍLL YOU")
	assert.True(ok)
	assert.Equal("kill", term)
	// the original list is unchanged
	assert.False(dl.FoldsAccents())

	// accented terms match accented text either way
	dl = NewDenylist([]string{"évil"})
	_, ok = dl.Match("so ÉVIL")
	assert.True(ok)
	_, ok = dl.Match("so evil")
	assert.False(ok)
	_, ok = dl.WithAccentFolding().Match("so evil")
	assert.True(ok)
}

func TestNewDenylistNormalizes(t *testing.T) {
	assert := assert.New(t)

	dl := NewDenylist([]string{" Spam ", "spam", "", "ÉVIL"})
	assert.Equal([]string{"spam", "évil"}, dl.Terms())
	assert.Equal(2, dl.Len())
	assert.Equal([]string{"evil", "spam"}, dl.WithAccentFolding().Terms())

	_, ok := NewDenylist(nil).Match("anything at all")
	assert.False(ok)
}

func TestLoadDenylistJSON(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	arrPath := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(arrPath, []byte(`["scam", "fraud"]`), 0644))
	dl, err := LoadDenylistJSON(arrPath)
	require.NoError(t, err)
	assert.Equal([]string{"fraud", "scam"}, dl.Terms())

	setsPath := filepath.Join(dir, "sets.json")
	require.NoError(t, os.WriteFile(setsPath, []byte(`{"denylist": ["doping"], "other": ["x"]}`), 0644))
	dl, err = LoadDenylistJSON(setsPath)
	require.NoError(t, err)
	assert.Equal([]string{"doping"}, dl.Terms())

	_, err = ParseDenylistJSON([]byte(`{"other": ["x"]}`))
	assert.Error(err)

	_, err = ParseDenylistJSON([]byte(`not json`))
	assert.Error(err)

	_, err = LoadDenylistJSON(filepath.Join(dir, "missing.json"))
	assert.Error(err)
}
