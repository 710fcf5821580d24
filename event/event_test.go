package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenSimpleObject(t *testing.T) {
	e, err := Flatten([]byte(`{"detail":{"state":"running","count":3}}`))
	require.NoError(t, err)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "detail.count", e.Fields[0].Path)
	assert.Equal(t, "3", e.Fields[0].Value)
	assert.Equal(t, "detail.state", e.Fields[1].Path)
	assert.Equal(t, `"running"`, e.Fields[1].Value)
}

func TestFlattenIsSortedByPath(t *testing.T) {
	e, err := Flatten([]byte(`{"z":"last","a":"first"}`))
	require.NoError(t, err)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "a", e.Fields[0].Path)
	assert.Equal(t, "z", e.Fields[1].Path)
}

func TestFlattenArrayDoesNotExtendPath(t *testing.T) {
	e, err := Flatten([]byte(`{"tags":["a","b"]}`))
	require.NoError(t, err)
	require.Len(t, e.Fields, 2)
	for _, f := range e.Fields {
		assert.Equal(t, "tags", f.Path)
	}
}

func TestFlattenArrayMembershipTracksElement(t *testing.T) {
	e, err := Flatten([]byte(`{"items":[{"a":"1","b":"1"},{"a":"2","b":"2"}]}`))
	require.NoError(t, err)

	byPathValue := map[string]Field{}
	for _, f := range e.Fields {
		byPathValue[f.Path+f.Value] = f
	}

	a1 := byPathValue[`items.a"1"`]
	b1 := byPathValue[`items.b"1"`]
	a2 := byPathValue[`items.a"2"`]

	assert.True(t, SameArrayElement(a1.Membership, b1.Membership), "a=1 and b=1 came from the same element")
	assert.False(t, SameArrayElement(a1.Membership, a2.Membership), "a=1 and a=2 came from different elements")
}

func TestPresentPaths(t *testing.T) {
	e, err := Flatten([]byte(`{"a":{"b":"x"}}`))
	require.NoError(t, err)
	present := e.PresentPaths()
	assert.True(t, present["a.b"])
	assert.False(t, present["a.c"])
}

func TestFlattenRejectsNonObjectRoot(t *testing.T) {
	_, err := Flatten([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestFlattenNullAndBool(t *testing.T) {
	e, err := Flatten([]byte(`{"a":null,"b":true,"c":false}`))
	require.NoError(t, err)
	vals := map[string]string{}
	for _, f := range e.Fields {
		vals[f.Path] = f.Value
	}
	assert.Equal(t, "null", vals["a"])
	assert.Equal(t, "true", vals["b"])
	assert.Equal(t, "false", vals["c"])
}
