package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	h := HashOfString("I will kill you")
	assert.Len(h, 16)
	assert.Equal(h, HashOfString("I will kill you"))
	assert.NotEqual(h, HashOfString("have a great day"))
}

func TestTruncateText(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("", TruncateText("anything", 0))
	assert.Equal("short", TruncateText("short", 10))
	assert.Equal("Gdań…", TruncateText("Gdańsk", 4))
}
