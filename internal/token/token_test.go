package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate("   "))
	assert.Equal(t, 1, Estimate("a"))
	assert.Equal(t, 3, Estimate("one two three"))
}

func TestCountIsPositiveAndMonotonic(t *testing.T) {
	short := Count("public class A {}")
	long := Count("public class A { void run() { System.out.println(\"hello\"); } }")
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
	assert.Equal(t, 0, Count(""))
}
