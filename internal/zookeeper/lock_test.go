package zookeeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortBySequenceIgnoresProtectedPrefix(t *testing.T) {
	children := []string{
		"_c_9f2b-lock-0000000012",
		"_c_01aa-lock-0000000010",
		"_c_ffff-lock-0000000011",
	}
	sortBySequence(children)
	assert.Equal(t, []string{
		"_c_01aa-lock-0000000010",
		"_c_ffff-lock-0000000011",
		"_c_9f2b-lock-0000000012",
	}, children)
}

func TestIndexOf(t *testing.T) {
	assert.Equal(t, 1, indexOf([]string{"a", "b"}, "b"))
	assert.Equal(t, -1, indexOf([]string{"a"}, "z"))
}
