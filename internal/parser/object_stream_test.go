package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStreamReader_ReadAt(t *testing.T) {
	// Header: "10 0 11 4" then the two objects themselves (object 11
	// starts 4 bytes past First, right after "(hi)").
	header := "10 0 11 4"
	obj1 := "(hi)"
	obj2 := "/Name"
	body := header + obj1 + obj2

	dict := NewDictionary()
	dict.Set("N", Integer(2))
	dict.Set("First", Integer(int64(len(header))))

	r, err := NewObjectStreamReader(dict, []byte(body))
	require.NoError(t, err)
	require.Equal(t, 2, r.Count())
	assert.Equal(t, uint32(10), r.ObjectNumberAt(0))
	assert.Equal(t, uint32(11), r.ObjectNumberAt(1))

	first, err := r.ReadAt(0)
	require.NoError(t, err)
	assert.Equal(t, String("hi"), first)

	second, err := r.ReadAt(1)
	require.NoError(t, err)
	assert.Equal(t, Name("Name"), second)
}

func TestObjectStreamReader_InvalidHeader(t *testing.T) {
	dict := NewDictionary()
	dict.Set("N", Integer(0))
	dict.Set("First", Integer(0))
	_, err := NewObjectStreamReader(dict, []byte(""))
	assert.Error(t, err)
}

func TestObjectStreamReader_OutOfRange(t *testing.T) {
	header := "1 0 "
	dict := NewDictionary()
	dict.Set("N", Integer(1))
	dict.Set("First", Integer(int64(len(header))))
	r, err := NewObjectStreamReader(dict, []byte(header+"42"))
	require.NoError(t, err)
	_, err = r.ReadAt(5)
	assert.Error(t, err)
}
