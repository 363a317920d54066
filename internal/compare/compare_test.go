package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrict_Identical(t *testing.T) {
	out := []byte("a\nb\nc\n")
	o := Compare(out, append([]byte(nil), out...), Strict, Options{})
	assert.True(t, o.Matched)
	assert.Empty(t, o.Lines)
	assert.Equal(t, Strict, o.Mode)
	assert.Equal(t, 3, o.ToolLines)
}

func TestStrict_BothEmpty(t *testing.T) {
	o := Compare(nil, []byte{}, Strict, Options{})
	assert.True(t, o.Matched)
}

func TestStrict_ReplacedLine(t *testing.T) {
	o := Compare([]byte("a\nb\n"), []byte("a\nc\n"), Strict, Options{})
	require.False(t, o.Matched)
	assert.Equal(t, []DiffLine{
		{Tag: Keep, Index: 0, Line: "a"},
		{Tag: Remove, Index: 1, Line: "b"},
		{Tag: Add, Index: 1, Line: "c"},
	}, o.Lines)
	assert.Equal(t, []DiffLine{
		{Tag: Remove, Index: 1, Line: "b"},
		{Tag: Add, Index: 1, Line: "c"},
	}, o.Changes())
}

func TestStrict_InsertAndDelete(t *testing.T) {
	tool := []byte("a\nb\nc\nd\n")
	ref := []byte("a\nc\nd\ne\n")
	o := Compare(tool, ref, Strict, Options{})
	require.False(t, o.Matched)
	assert.Equal(t, []DiffLine{
		{Tag: Remove, Index: 1, Line: "b"},
		{Tag: Add, Index: 3, Line: "e"},
	}, o.Changes())
}

func TestStrict_WhitespaceOnlyDifference(t *testing.T) {
	o := Compare([]byte("a  b\n"), []byte("a b\n"), Strict, Options{CollapseSpace: true})
	require.False(t, o.Matched, "strict mode ignores whitespace options")
	assert.Len(t, o.Changes(), 2)
}

func TestStrict_MissingFinalNewline(t *testing.T) {
	o := Compare([]byte("a\nb"), []byte("a\nb\n"), Strict, Options{})
	require.False(t, o.Matched)
	assert.Equal(t, []DiffLine{
		{Tag: Remove, Index: 1, Line: "b", NoNewline: true},
		{Tag: Add, Index: 1, Line: "b"},
	}, o.Changes())
}

func TestStrict_EverySingleByteMutationDetected(t *testing.T) {
	ref := []byte("total 4\n-rw-r--r-- 1 root root 10 file.txt\nsrc\n")
	for i := range ref {
		tool := append([]byte(nil), ref...)
		tool[i] ^= 0x01
		o := Compare(tool, ref, Strict, Options{})
		if o.Matched {
			t.Fatalf("mutation at byte %d: Matched = true", i)
		}
		if len(o.Changes()) == 0 {
			t.Fatalf("mutation at byte %d: no diff lines", i)
		}
	}
}

func TestStrict_Deterministic(t *testing.T) {
	tool := []byte("x\ny\nz\nx\ny\n")
	ref := []byte("y\nx\nz\ny\nx\n")
	first := Compare(tool, ref, Strict, Options{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compare(tool, ref, Strict, Options{}))
	}
}

func TestLineTrimmed_EdgeWhitespaceTolerated(t *testing.T) {
	tool := []byte("  10 file.txt\nsrc   \n")
	ref := []byte("10 file.txt\t\n  src\n")
	o := Compare(tool, ref, LineTrimmed, Options{})
	assert.True(t, o.Matched)
	assert.Empty(t, o.Lines)
	assert.False(t, o.CountMismatch)
}

func TestLineTrimmed_InternalPaddingIsMismatchByDefault(t *testing.T) {
	o := Compare([]byte("10 file.txt\n"), []byte("10  file.txt\n"), LineTrimmed, Options{})
	require.False(t, o.Matched)
	assert.Equal(t, []DiffLine{
		{Tag: Remove, Index: 0, Line: "10 file.txt"},
		{Tag: Add, Index: 0, Line: "10  file.txt"},
	}, o.Lines)
}

func TestLineTrimmed_CollapseSpace(t *testing.T) {
	o := Compare([]byte("10 file.txt\n"), []byte("10  file.txt\n"), LineTrimmed, Options{CollapseSpace: true})
	assert.True(t, o.Matched)
}

func TestLineTrimmed_TokenDifferenceIndices(t *testing.T) {
	tool := []byte("a\nb\nc\nd\n")
	ref := []byte("a\nB\nc\nD\n")
	o := Compare(tool, ref, LineTrimmed, Options{})
	require.False(t, o.Matched)

	var idx []int
	for _, l := range o.Lines {
		if l.Tag == Remove {
			idx = append(idx, l.Index)
		}
	}
	assert.Equal(t, []int{1, 3}, idx)
	assert.Equal(t, DiffLine{Tag: Add, Index: 3, Line: "D"}, o.Lines[3])
}

func TestLineTrimmed_CountMismatch(t *testing.T) {
	tool := []byte("a\nb\nc\n")
	ref := []byte("a\nx\n")
	o := Compare(tool, ref, LineTrimmed, Options{})
	require.False(t, o.Matched)
	assert.True(t, o.CountMismatch)
	assert.Equal(t, 3, o.ToolLines)
	assert.Equal(t, 2, o.RefLines)
	assert.Equal(t, []DiffLine{
		{Tag: Remove, Index: 1, Line: "b"},
		{Tag: Add, Index: 1, Line: "x"},
		{Tag: Remove, Index: 2, Line: "c"},
	}, o.Lines)
}

func TestLineTrimmed_CountMismatchWithEqualPrefix(t *testing.T) {
	// Every shared line matches, yet the outcome must still fail.
	o := Compare([]byte("a\nb\n"), []byte("a\nb\n\n"), LineTrimmed, Options{})
	assert.False(t, o.Matched)
	assert.True(t, o.CountMismatch)
	assert.Equal(t, []DiffLine{{Tag: Add, Index: 2, Line: ""}}, o.Lines)
}

func TestLineTrimmed_TrailingNewlineOptional(t *testing.T) {
	o := Compare([]byte("a\nb"), []byte("a\nb\n"), LineTrimmed, Options{})
	assert.True(t, o.Matched)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("line-trimmed")
	require.NoError(t, err)
	assert.Equal(t, LineTrimmed, m)

	_, err = ParseMode("fuzzy")
	assert.Error(t, err)
}
