// Package normalize cleans up a model reply and validates it into an Assessment.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/franckalain/sosscan/internal/errors"
	"github.com/franckalain/sosscan/internal/models"
)

const excerptLimit = 200

// fenced matches a reply wrapped in a markdown code block, with or without a language tag
var fenced = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)\r?\n?[ \t]*```$")

var overEscaped = strings.NewReplacer(
	`\r\n`, "\n",
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
	`\"`, `"`,
)

// wire mirrors the reply schema with pointers so missing fields can be told apart from zero values
type wireImpact struct {
	Value    *float64 `json:"value"`
	MaxValue *float64 `json:"max_value"`
}

type wireReply struct {
	SustainabilityData *struct {
		AffectOn *struct {
			PlantLife  *wireImpact `json:"plant_life"`
			MarineLife *wireImpact `json:"marine_life"`
			LandLife   *wireImpact `json:"land_life"`
		} `json:"affect_on"`
		BadEffect   *string `json:"bad_effect"`
		Alternative *struct {
			ProductTitle *string `json:"product_title"`
			Reason       *string `json:"reason"`
		} `json:"alternative"`
	} `json:"sustainability_data"`
}

// Normalize turns raw model text into a validated Assessment. Every failure is
// a CategoryMalformedResponse error holding an excerpt of the offending text.
func Normalize(raw string) (*models.Assessment, error) {
	text := Clean(raw)

	var reply wireReply
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&reply); err != nil {
		return nil, malformed(fmt.Errorf("failed to parse model response: %w", err), raw)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed(fmt.Errorf("unexpected data after the response object"), raw)
	}

	a, err := validate(&reply)
	if err != nil {
		return nil, malformed(err, raw)
	}
	return a, nil
}

// Clean strips code fencing and surrounding whitespace, and un-escapes control
// characters when the text is not already valid JSON.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fenced.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)

	if json.Valid([]byte(text)) {
		// a reply that is itself one JSON string literal holds the object inside it
		var inner string
		if strings.HasPrefix(text, `"`) && json.Unmarshal([]byte(text), &inner) == nil {
			return Clean(inner)
		}
		return text
	}
	replaced := strings.TrimSpace(overEscaped.Replace(text))
	if json.Valid([]byte(replaced)) {
		return replaced
	}
	// replacing everywhere also breaks escapes that belong inside string values
	if structural := strings.TrimSpace(unescapeStructure(text)); json.Valid([]byte(structural)) {
		return structural
	}
	return replaced
}

// unescapeStructure turns escaped line breaks and tabs between tokens into
// whitespace and escaped quotes into string delimiters, leaving the contents
// of string values as they are.
func unescapeStructure(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escapedQuotes := false // the current string was opened by \"
	for i := 0; i < len(text); i++ {
		c := text[i]
		var next byte
		if i+1 < len(text) {
			next = text[i+1]
		}

		if inString {
			switch {
			case c == '\\' && next == '"' && escapedQuotes:
				b.WriteByte('"')
				inString = false
				i++
			case c == '\\' && next != 0:
				b.WriteByte(c)
				b.WriteByte(next)
				i++
			case c == '"' && !escapedQuotes:
				b.WriteByte(c)
				inString = false
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '\\' && next == 'n':
			b.WriteByte('\n')
			i++
		case c == '\\' && next == 'r':
			b.WriteByte('\r')
			i++
		case c == '\\' && next == 't':
			b.WriteByte('\t')
			i++
		case c == '\\' && next == '"':
			b.WriteByte('"')
			inString, escapedQuotes = true, true
			i++
		case c == '"':
			b.WriteByte(c)
			inString, escapedQuotes = true, false
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func validate(reply *wireReply) (*models.Assessment, error) {
	data := reply.SustainabilityData
	if data == nil {
		return nil, fmt.Errorf("missing sustainability_data")
	}
	if data.AffectOn == nil {
		return nil, fmt.Errorf("missing sustainability_data.affect_on")
	}

	plant, err := impact("plant_life", data.AffectOn.PlantLife)
	if err != nil {
		return nil, err
	}
	marine, err := impact("marine_life", data.AffectOn.MarineLife)
	if err != nil {
		return nil, err
	}
	land, err := impact("land_life", data.AffectOn.LandLife)
	if err != nil {
		return nil, err
	}

	if data.BadEffect == nil {
		return nil, fmt.Errorf("missing sustainability_data.bad_effect")
	}
	if data.Alternative == nil {
		return nil, fmt.Errorf("missing sustainability_data.alternative")
	}
	if err := nonEmpty("alternative.product_title", data.Alternative.ProductTitle); err != nil {
		return nil, err
	}
	if err := nonEmpty("alternative.reason", data.Alternative.Reason); err != nil {
		return nil, err
	}

	return &models.Assessment{
		AffectOn: models.AffectOn{
			PlantLife:  plant,
			MarineLife: marine,
			LandLife:   land,
		},
		BadEffect: *data.BadEffect,
		Alternative: models.Alternative{
			ProductTitle: *data.Alternative.ProductTitle,
			Reason:       *data.Alternative.Reason,
		},
	}, nil
}

func impact(name string, w *wireImpact) (models.Impact, error) {
	if w == nil {
		return models.Impact{}, fmt.Errorf("missing affect_on.%s", name)
	}
	if w.Value == nil || w.MaxValue == nil {
		return models.Impact{}, fmt.Errorf("affect_on.%s needs both value and max_value", name)
	}
	v, maxValue := *w.Value, *w.MaxValue
	if maxValue <= 0 {
		return models.Impact{}, fmt.Errorf("affect_on.%s.max_value must be positive, got %g", name, maxValue)
	}
	if v < 0 || v > maxValue {
		return models.Impact{}, fmt.Errorf("affect_on.%s.value %g outside [0, %g]", name, v, maxValue)
	}
	return models.Impact{Value: v, MaxValue: maxValue}, nil
}

func nonEmpty(name string, s *string) error {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fmt.Errorf("%s must be a non-empty string", name)
	}
	return nil
}

func malformed(err error, raw string) error {
	return errors.New(err).
		Category(errors.CategoryMalformedResponse).
		Context(errors.ContextExcerpt, excerpt(raw)).
		Build()
}

func excerpt(raw string) string {
	raw = string(bytes.ToValidUTF8([]byte(raw), nil))
	if len(raw) <= excerptLimit {
		return raw
	}
	return raw[:excerptLimit] + "..."
}
