package jsonutil

import (
	"testing"

	"insightpipe/internal/tester"
)

func TestStripFences_JSONTag(t *testing.T) {
	in := "```json\n[[0,1],[2]]\n```"
	tester.Eq(t, StripFences(in), "[[0,1],[2]]")
}

func TestStripFences_NoFence(t *testing.T) {
	tester.Eq(t, StripFences("  [1,2] \n"), "[1,2]")
}

func TestStripFences_BareFence(t *testing.T) {
	in := "```\n{\"a\":1}\n```"
	tester.Eq(t, StripFences(in), "{\"a\":1}")
}

func TestUnmarshalFlex_FencedArray(t *testing.T) {
	var out [][]int
	err := UnmarshalFlex("```json\n[[0,2],[1]]\n```", &out)
	tester.NoErr(t, err)
	tester.Eq(t, out, [][]int{{0, 2}, {1}})
}

func TestUnmarshalFlex_ProseAroundArray(t *testing.T) {
	var out [][]int
	err := UnmarshalFlex("Here is the clustering:\n[[0],[1,2]]\nHope this helps!", &out)
	tester.NoErr(t, err)
	tester.Eq(t, out, [][]int{{0}, {1, 2}})
}

func TestUnmarshalFlex_Garbage(t *testing.T) {
	var out [][]int
	err := UnmarshalFlex("no json here at all", &out)
	tester.True(t, err != nil, "expected parse error")
}
