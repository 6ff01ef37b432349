package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_StartsAbsent(t *testing.T) {
	h := NewHolder()
	assert.Equal(t, NoToken, h.Token())
	assert.False(t, h.Authenticated())

	var zero Holder
	assert.Equal(t, NoToken, zero.Token())
}

func TestHolder_SetAndClear(t *testing.T) {
	h := NewHolder()
	h.SetToken("abc")
	assert.Equal(t, Token("abc"), h.Token())
	assert.True(t, h.Authenticated())

	h.Clear()
	assert.Equal(t, NoToken, h.Token())
	assert.False(t, h.Authenticated())
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h := NewHolder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.SetToken("t")
		}()
		go func() {
			defer wg.Done()
			_ = h.Token()
		}()
	}
	wg.Wait()
	assert.Equal(t, Token("t"), h.Token())
}

func TestToken_Present(t *testing.T) {
	assert.False(t, NoToken.Present())
	assert.True(t, Token("x").Present())
	assert.Equal(t, "x", Token("x").String())
}
