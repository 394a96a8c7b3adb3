package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_Order(t *testing.T) {
	cases := []struct {
		value, rule string
		want        bool
	}{
		{"minecraft:stone", "minecraft:stone", true},
		{"minecraft:stone", "stone", true},
		{"minecraft:iron_ore", "ore", true},
		{"minecraft:iron_ore", "minecraft", true}, // substring of the full value
		{"minecraft:iron_ore", "minecraft:ore", false},
		{"minecraft:iron_ore", "other:iron_ore", false},
		{"minecraft:stone", "dirt", false},
		{"minecraft:stone", "", false},
		{"stone", "stone", true},
		{"custom:deepslate_tiles", "slate", true},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, Matches(c.value, c.rule), "Matches(%q, %q)", c.value, c.rule)
	}
}

func TestMatches_NegationInvertsResult(t *testing.T) {
	values := []string{"minecraft:stone", "minecraft:oak_log", "mod:weird_block", "plain"}
	ruleSet := []string{"stone", "log", "minecraft:oak_log", "oak", "mod", "x", "plain", "!stone"}
	for _, v := range values {
		for _, r := range ruleSet {
			assert.Equalf(t, !Matches(v, r), Matches(v, NegateMarker+r), "value=%q rule=%q", v, r)
		}
	}
	assert.True(t, Matches("minecraft:stone", "!!stone"))
	assert.False(t, Matches("plain", "!!stone"))
	assert.Equal(t, Hit, Eval("minecraft:stone", "!!stone"))
}

func TestListMatches_AnyPositiveButNegativeWins(t *testing.T) {
	assert.True(t, ListMatches("minecraft:oak_log", []string{"log"}))
	assert.True(t, ListMatches("minecraft:oak_log", []string{"log", "!stripped"}))
	assert.False(t, ListMatches("minecraft:stripped_oak_log", []string{"log", "!stripped"}))
	assert.False(t, ListMatches("minecraft:stripped_oak_log", []string{"!stripped", "log"}))
	// A negated rule that does not hit contributes nothing on its own.
	assert.False(t, ListMatches("minecraft:oak_log", []string{"!stripped"}))
	assert.False(t, ListMatches("minecraft:oak_log", nil))
}

func TestTargetMatches_TagScoped(t *testing.T) {
	tags := []string{"stone", "minecraft:is_pickaxe_item_destructible"}
	assert.True(t, TargetMatches("minecraft:granite", tags, []string{"#stone"}))
	assert.True(t, TargetMatches("minecraft:granite", tags, []string{"#pickaxe"}))
	assert.False(t, TargetMatches("minecraft:granite", tags, []string{"#wood"}))
	assert.False(t, TargetMatches("minecraft:granite", tags, []string{"granite", "!#stone"}))
	assert.True(t, TargetMatches("minecraft:granite", tags, []string{"granite", "!#wood"}))
	assert.True(t, TargetMatches("minecraft:granite", tags, []string{"!!#stone"}))
	assert.Equal(t, NegatedHit, EvalTarget("minecraft:granite", tags, "!!!#stone"))
	assert.Equal(t, Miss, EvalTarget("minecraft:granite", tags, "!!#wood"))
}

func TestNameAndNamespace(t *testing.T) {
	assert.Equal(t, "minecraft", Namespace("minecraft:stone"))
	assert.Equal(t, "stone", Name("minecraft:stone"))
	assert.Equal(t, "", Namespace("stone"))
	assert.Equal(t, "stone", Name("stone"))
}
