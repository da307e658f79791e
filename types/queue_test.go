package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueKeepsOrder(t *testing.T) {
	q := NewQueue[int](0)

	for i := range 5 {
		assert.True(t, q.Push(i))
	}

	select {
	case <-q.Wake():
	default:
		assert.Fail(t, "queue did not signal a wakeup after push")
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, q.Drain())
	assert.Empty(t, q.Drain())
	assert.Equal(t, 0, q.Len())
}

func TestQueueLimit(t *testing.T) {
	q := NewQueue[string](2)

	assert.True(t, q.Push("a"))
	assert.True(t, q.Push("b"))
	assert.False(t, q.Push("c"))
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, []string{"a", "b"}, q.Drain())
	assert.True(t, q.Push("d"))
}

func TestRunCheck(t *testing.T) {
	rc := MakeRunCheck()

	assert.True(t, rc.CheckOrMark())
	assert.False(t, rc.CheckOrMark())
}
