package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/franckalain/sosscan/internal/errors"
	"github.com/franckalain/sosscan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReply = `{
  "sustainability_data": {
    "affect_on": {
      "plant_life": {"value": 4, "max_value": 10},
      "marine_life": {"value": 6, "max_value": 10},
      "land_life": {"value": 8, "max_value": 10}
    },
    "bad_effect": "Single-use plastic bottle that ends up in oceans.",
    "alternative": {
      "product_title": "Stainless steel bottle",
      "reason": "Reusable for years."
    }
  }
}`

func expectedAssessment() *models.Assessment {
	return &models.Assessment{
		AffectOn: models.AffectOn{
			PlantLife:  models.Impact{Value: 4, MaxValue: 10},
			MarineLife: models.Impact{Value: 6, MaxValue: 10},
			LandLife:   models.Impact{Value: 8, MaxValue: 10},
		},
		BadEffect: "Single-use plastic bottle that ends up in oceans.",
		Alternative: models.Alternative{
			ProductTitle: "Stainless steel bottle",
			Reason:       "Reusable for years.",
		},
	}
}

func TestNormalizeValid(t *testing.T) {
	t.Parallel()

	a, err := Normalize(validReply)
	require.NoError(t, err)
	assert.Equal(t, expectedAssessment(), a)
}

func TestNormalizeFencedAndEscapedMatchesPlain(t *testing.T) {
	t.Parallel()

	plain, err := Normalize(validReply)
	require.NoError(t, err)

	escaped := strings.ReplaceAll(validReply, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)

	variants := map[string]string{
		"json fence":             "```json\n" + validReply + "\n```",
		"bare fence":             "```\n" + validReply + "\n```",
		"fence with whitespace":  "  \n```JSON\n" + validReply + "\n```\n\n",
		"escaped newlines":       strings.ReplaceAll(validReply, "\n", `\n`),
		"fenced escaped":         "```json\n" + strings.ReplaceAll(validReply, "\n", `\n`) + "\n```",
		"fenced escaped quotes":  "```json\n" + escaped + "\n```",
		"single line fence":      "```json " + compact(t, validReply) + "```",
		"json string literal":    quote(t, validReply),
		"escaped windows breaks": strings.ReplaceAll(validReply, "\n", `\r\n`),
	}

	for name, raw := range variants {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}
}

func TestNormalizeKeepsLegitimateEscapesInStrings(t *testing.T) {
	t.Parallel()

	raw := strings.Replace(validReply, "Reusable for years.", `Reusable.\nLasts years.`, 1)
	a, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Reusable.\nLasts years.", a.Alternative.Reason)
}

func TestNormalizeEscapedLayoutKeepsEscapesInStrings(t *testing.T) {
	t.Parallel()

	withBreak := strings.Replace(validReply, "Reusable for years.", `Reusable.\nLasts years.`, 1)
	variants := map[string]string{
		"escaped newlines":      strings.ReplaceAll(withBreak, "\n", `\n`),
		"fenced escaped tabs":   "```json\n" + strings.ReplaceAll(strings.ReplaceAll(withBreak, "\n", `\n`), "  ", `\t`) + "\n```",
		"escaped windows lines": strings.ReplaceAll(withBreak, "\n", `\r\n`),
	}

	for name, raw := range variants {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			a, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, "Reusable.\nLasts years.", a.Alternative.Reason)
			assert.Equal(t, expectedAssessment().BadEffect, a.BadEffect)
		})
	}
}

func TestUnescapeStructure(t *testing.T) {
	t.Parallel()

	got := unescapeStructure(`{\n\t\"a\": \"x\\ny\",\n\t"b": "p\tq"\n}`)
	assert.Equal(t, "{\n\t\"a\": \"x\\\\ny\",\n\t\"b\": \"p\\tq\"\n}", got)
	assert.True(t, json.Valid([]byte(got)))
}

func TestNormalizeMissingReasonFails(t *testing.T) {
	t.Parallel()

	raw := strings.Replace(validReply, `,
      "reason": "Reusable for years."`, "", 1)
	require.NotContains(t, raw, `"reason"`)

	a, err := Normalize(raw)
	require.Error(t, err)
	assert.Nil(t, a, "no partial assessment on failure")
	assert.True(t, errors.HasCategory(err, errors.CategoryMalformedResponse))
	assert.Contains(t, err.Error(), "alternative.reason")

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.NotEmpty(t, ee.GetContext()[errors.ContextExcerpt])
}

func TestNormalizeRejects(t *testing.T) {
	t.Parallel()

	replace := func(old, repl string) string {
		out := strings.Replace(validReply, old, repl, 1)
		require.NotEqual(t, validReply, out, "replacement %q did not apply", old)
		return out
	}

	tests := map[string]string{
		"empty":                "",
		"prose":                "I'm sorry, I can't identify this product.",
		"truncated":            validReply[:len(validReply)/2],
		"array":                "[1,2,3]",
		"null":                 "null",
		"two objects":          validReply + validReply,
		"missing data":         `{"result": {}}`,
		"missing affect_on":    replace(`"affect_on"`, `"effects"`),
		"missing land_life":    replace(`"land_life"`, `"soil_life"`),
		"missing max_value":    replace(`"value": 6, "max_value": 10`, `"value": 6`),
		"string value":         replace(`"value": 4,`, `"value": "4",`),
		"value above max":      replace(`"value": 8, "max_value": 10`, `"value": 12, "max_value": 10`),
		"negative value":       replace(`"value": 4,`, `"value": -1,`),
		"zero max":             replace(`"value": 4, "max_value": 10`, `"value": 0, "max_value": 0`),
		"missing bad_effect":   replace(`"bad_effect"`, `"side_effect"`),
		"empty product title":  replace(`"Stainless steel bottle"`, `"  "`),
		"numeric reason":       replace(`"Reusable for years."`, `42`),
		"missing alternative":  replace(`"alternative"`, `"alt"`),
		"unterminated fencing": "```json\n{",
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			a, err := Normalize(raw)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Equal(t, errors.CategoryMalformedResponse, errors.CategoryOf(err))
		})
	}
}

func TestNormalizeAllowsBoundaryValues(t *testing.T) {
	t.Parallel()

	raw := strings.Replace(validReply, `"value": 4, "max_value": 10`, `"value": 0, "max_value": 10`, 1)
	raw = strings.Replace(raw, `"value": 8, "max_value": 10`, `"value": 10, "max_value": 10`, 1)

	a, err := Normalize(raw)
	require.NoError(t, err)
	assert.Zero(t, a.AffectOn.PlantLife.Value)
	assert.Equal(t, 10.0, a.AffectOn.LandLife.Value)
}

func TestExcerptIsBounded(t *testing.T) {
	t.Parallel()

	_, err := Normalize(strings.Repeat("x", 5000))
	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.LessOrEqual(t, len(ee.GetContext()[errors.ContextExcerpt].(string)), excerptLimit+3)
}

func compact(t *testing.T, s string) string {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func quote(t *testing.T, s string) string {
	t.Helper()
	out, err := json.Marshal(s)
	require.NoError(t, err)
	return string(out)
}
