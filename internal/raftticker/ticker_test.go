package raftticker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResetBoundsFollower(t *testing.T) {
	tk := New(5, 10, rand.New(rand.NewSource(42)))
	for i := 0; i < 100; i++ {
		tk.Reset(false)
		assert.GreaterOrEqual(t, tk.Remaining(), 5)
		assert.LessOrEqual(t, tk.Remaining(), 10)
	}
}

func TestResetLeaderIsShortest(t *testing.T) {
	tk := New(5, 10, rand.New(rand.NewSource(1)))
	tk.Reset(true)
	assert.Equal(t, 4, tk.Remaining())
}

func TestResetLeaderNeverZero(t *testing.T) {
	tk := New(1, 1, rand.New(rand.NewSource(1)))
	tk.Reset(true)
	assert.Equal(t, 1, tk.Remaining())
}

func TestTickExpiresAtZero(t *testing.T) {
	tk := New(2, 2, rand.New(rand.NewSource(1)))
	tk.Reset(false)
	assert.Equal(t, 2, tk.Remaining())
	assert.Equal(t, NoEvent, tk.Tick())
	assert.Equal(t, Expired, tk.Tick())
}
