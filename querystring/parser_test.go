package querystring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func parseFixed(t *testing.T, qs string) []Element {
	elements, err := ParseWithOptions(qs, Options{
		Now: func() time.Time { return fixedNow },
	})
	require.Nil(t, err, "failed to parse %q", qs)
	return elements
}

func TestEmpty(t *testing.T) {
	assert.Equal(t, []Element{}, parseFixed(t, ""))
	assert.Equal(t, []Element{}, parseFixed(t, "   "))
}

func TestMissingEndQuote(t *testing.T) {
	_, err := Parse("\"quoted string missing end")
	require.NotNil(t, err)
	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, 0, perr.Pos)

	_, err = Parse("foo key:\"missing end")
	require.NotNil(t, err)
	assert.Equal(t, 8, err.(*ParseError).Pos)
}

func TestStringWithTrailingWhiteSpace(t *testing.T) {
	assert.Equal(t, []Element{NewString("testing")}, parseFixed(t, "testing "))
}

func TestSingleQuotedValue(t *testing.T) {
	assert.Equal(t, []Element{NewString("quoted string")},
		parseFixed(t, "\"quoted string\""))
}

func TestMultipleQuotedValues(t *testing.T) {
	assert.Equal(t, []Element{
		NewString("quoted string"),
		NewString("and another one"),
	}, parseFixed(t, "\"quoted string\" \"and another one\""))
}

func TestSingleValue(t *testing.T) {
	qs := "justonelongstringperhapswithsome\"*&specialchars"
	assert.Equal(t, []Element{NewString(qs)}, parseFixed(t, qs))
}

func TestMultipleUnquotedValues(t *testing.T) {
	assert.Equal(t, []Element{
		NewString("one"),
		NewString("two"),
		NewString("three"),
	}, parseFixed(t, "one two three"))
}

func TestSingleKeyVal(t *testing.T) {
	assert.Equal(t, []Element{NewKeyValue("key", "val")},
		parseFixed(t, "key:val"))
}

func TestMultipleKeyVals(t *testing.T) {
	assert.Equal(t, []Element{
		NewKeyValue("key1", "val1"),
		NewKeyValue("key2", "val2"),
	}, parseFixed(t, "key1:val1 key2:val2"))
}

func TestQuotedVal(t *testing.T) {
	assert.Equal(t, []Element{
		NewKeyValue("key1", "val1"),
		NewKeyValue("key2", "val2"),
		NewKeyValue("key3", "this is key 3"),
	}, parseFixed(t, "key1:val1 key2:val2 key3:\"this is key 3\""))

	assert.Equal(t, []Element{NewKeyValue("key", "value with spaces")},
		parseFixed(t, `key:"value with spaces"`))
}

func TestNegation(t *testing.T) {
	assert.Equal(t, []Element{NewKeyValue("foo", "bar").Negate()},
		parseFixed(t, "-foo:bar"))
	assert.Equal(t, []Element{NewString("foo").Negate()},
		parseFixed(t, "-foo"))
	assert.Equal(t, []Element{NewString("quoted thing").Negate()},
		parseFixed(t, `-"quoted thing"`))

	// A lone dash is just a string.
	assert.Equal(t, []Element{NewString("-")}, parseFixed(t, "-"))
}

func TestAliasesAndNegatedString(t *testing.T) {
	elements := parseFixed(t, "alert.signature:\"ET DROP\" @sid:2200001 -archived")
	assert.Equal(t, []Element{
		NewKeyValue("alert.signature", "ET DROP"),
		NewKeyValue("alert.signature_id", "2200001"),
		NewString("archived").Negate(),
	}, elements)

	assert.Equal(t, []Element{NewKeyValue("alert.signature", "ET")},
		parseFixed(t, "@sig:ET"))
}

func TestEscapes(t *testing.T) {
	assert.Equal(t, []Element{NewString(`a:b`)}, parseFixed(t, `a\:b`))
	assert.Equal(t, []Element{NewString(`a\b`)}, parseFixed(t, `a\\b`))
	assert.Equal(t, []Element{NewString(`say "hi"`)},
		parseFixed(t, `"say \"hi\""`))
	assert.Equal(t, []Element{NewKeyValue("a:b", "c")},
		parseFixed(t, `a\:b:c`))

	_, err := Parse(`foo\n`)
	require.NotNil(t, err)
	assert.Equal(t, 3, err.(*ParseError).Pos)

	_, err = Parse(`foo\`)
	require.NotNil(t, err)
}

func TestValueMayContainColons(t *testing.T) {
	assert.Equal(t, []Element{NewIp("fe80::1")}, parseFixed(t, "@ip:fe80::1"))
}

func TestTimestamps(t *testing.T) {
	elements := parseFixed(t, "@from:2024-01-01T00:00:00Z @to:\"2024-01-02T00:00:00-06:00\"")
	require.Len(t, elements, 2)
	assert.Equal(t, From, elements[0].Type)
	assert.True(t, elements[0].Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, To, elements[1].Type)
	assert.True(t, elements[1].Time.Equal(time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)))

	elements = parseFixed(t, "@after:5m @before:1h @earliest:7d @latest:2024-01-01")
	require.Len(t, elements, 4)
	assert.Equal(t, After, elements[0].Type)
	assert.Equal(t, fixedNow.Add(-5*time.Minute), elements[0].Time)
	assert.Equal(t, Before, elements[1].Type)
	assert.Equal(t, fixedNow.Add(-time.Hour), elements[1].Time)
	assert.Equal(t, EarliestTimestamp, elements[2].Type)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), elements[2].Time)
	assert.Equal(t, LatestTimestamp, elements[3].Type)
	assert.True(t, elements[3].Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestTimestampDefaultOffset(t *testing.T) {
	elements, err := ParseWithOffset("@from:2024-01-01T00:00:00", "-0600")
	require.Nil(t, err)
	require.Len(t, elements, 1)
	assert.True(t, elements[0].Time.Equal(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)))

	// An explicit offset wins over the default.
	elements, err = ParseWithOffset("@from:2024-01-01T00:00:00+01:00", "-0600")
	require.Nil(t, err)
	assert.True(t, elements[0].Time.Equal(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)))

	_, err = ParseWithOffset("foo", "bogus")
	assert.NotNil(t, err)
}

func TestBadTimestamp(t *testing.T) {
	_, err := Parse("@from:yesterday")
	require.NotNil(t, err)
	perr := err.(*ParseError)
	assert.Equal(t, 6, perr.Pos)
	assert.Contains(t, perr.Error(), "yesterday")
}

func TestUnknownReservedKey(t *testing.T) {
	_, err := Parse("@bogus:1")
	assert.NotNil(t, err)
}

func TestMissingValue(t *testing.T) {
	_, err := Parse("key: value")
	assert.NotNil(t, err)
	_, err = Parse("key:")
	assert.NotNil(t, err)
}

func TestParseFormatParse(t *testing.T) {
	inputs := []string{
		"",
		"one two three",
		`alert.signature:"ET DROP" @sid:2200001 -archived`,
		`-foo:bar "quoted string" a\:b a\\b`,
		`"say \"hi\"" -"-dash" key:"-dashed value"`,
		"@ip:10.0.0.1 -@ip:fe80::1 @from:2024-01-01T00:00:00Z @before:1h",
		"@earliest:7d @latest:2024-01-01 @after:2024-01-01T10:00:00.123456789+02:00 @to:3d",
		`key:a:b:c "" x:""`,
	}
	for _, input := range inputs {
		first := parseFixed(t, input)
		second := parseFixed(t, Format(first))
		assert.Equal(t, first, second, "input: %q; formatted: %q", input, Format(first))
	}
}

func TestBounds(t *testing.T) {
	elements := parseFixed(t, "@from:2024-01-01T00:00:00Z @after:2024-01-02T00:00:00Z @to:2024-01-05T00:00:00Z @before:2024-01-04T00:00:00Z")
	assert.True(t, HasLowerBound(elements))

	lower, ok := LowerBound(elements)
	assert.True(t, ok)
	assert.True(t, lower.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))

	upper, ok := UpperBound(elements)
	assert.True(t, ok)
	assert.True(t, upper.Equal(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)))

	assert.False(t, HasLowerBound(parseFixed(t, "foo -@from:1h")))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("30s")
	assert.Nil(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = ParseDuration("2w")
	assert.Nil(t, err)
	assert.Equal(t, 14*24*time.Hour, d)

	_, err = ParseDuration("1y")
	assert.NotNil(t, err)
}
