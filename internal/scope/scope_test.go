package scope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobalDataAppendZero(t *testing.T) {
	var g GlobalData
	i0 := g.AppendZero()
	i1 := g.AppendZero()
	require.Equal(t, 0, i0)
	require.Equal(t, 1, i1)
	require.Equal(t, []int32{0, 0}, g.Words())
}

func TestGlobalDataAppendString(t *testing.T) {
	var g GlobalData
	base := g.AppendString("hi")
	require.Equal(t, 0, base)
	require.Equal(t, []int32{'h', 'i', 0}, g.Words())
}

func TestGlobalDataMalloc(t *testing.T) {
	var g GlobalData
	g.AppendZero()
	base := g.Malloc(3)
	require.Equal(t, 1, base)
	require.Equal(t, 4, g.Len())
}

func TestScopeDefineVariableAndFunction(t *testing.T) {
	var g GlobalData
	sc := NewOuter()
	sc.DefineVariable(&g, "x")
	sc.DefineFunction("inc", 7, 1)

	require.Equal(t, Entry{Kind: Variable, Slot: 0}, sc["x"])
	require.Equal(t, Entry{Kind: Function, Slot: 7, ArgCount: 1}, sc["inc"])
}

func TestChildForFunctionExcludesOwnArgsButKeepsSiblings(t *testing.T) {
	var g GlobalData
	outer := NewOuter()
	outer.DefineVariable(&g, "n")
	outer.DefineFunction("helper", 3, 1)

	child := outer.ChildForFunction([]string{"n"})
	_, hasN := child["n"]
	require.False(t, hasN, "n is about to be rebound as this function's own argument")
	_, hasHelper := child["helper"]
	require.True(t, hasHelper, "sibling functions remain callable from nested bodies")
}
