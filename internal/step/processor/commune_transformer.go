// Package processor holds the item processors of the communes jobs.
package processor

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	entity "github.com/tigerroll/communes/internal/domain/entity"
	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// MissingCoordinatesKey is the accumulator counter of records stored without coordinates.
const MissingCoordinatesKey = "recordsMissingCoordinates"

// Fields reported by ValidationError.
const (
	FieldCodeInsee   = "codeInsee"
	FieldCodePostal  = "codePostal"
	FieldNom         = "nom"
	FieldCoordinates = "coordonneesGPS"
)

var (
	codeInseePattern   = regexp.MustCompile(`^[0-9AB]{5}$`)
	codePostalPattern  = regexp.MustCompile(`^[0-9]{5}$`)
	nomPattern         = regexp.MustCompile(`^[A-Z\-' ]+$`)
	coordinatesPattern = regexp.MustCompile(`^[-+]?([1-8]?\d(\.\d+)?|90(\.0+)?),\s*[-+]?(180(\.0+)?|((1[0-7]\d)|([1-9]?\d))(\.\d+)?)$`)
)

// nameRules are applied in order to the capitalized name.
var nameRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`^L `), "L'"},
	{regexp.MustCompile(` L `), " L'"},
	{regexp.MustCompile(`^D `), "D'"},
	{regexp.MustCompile(` D `), " D'"},
	{regexp.MustCompile(`^St `), "Saint "},
	{regexp.MustCompile(` St `), " Saint "},
	{regexp.MustCompile(`^Ste `), "Sainte "},
	{regexp.MustCompile(` Sainte `), " Sainte "},
}

// ValidationError rejects a raw commune line.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func init() {
	exception.RegisterErrorType("ValidationError", &ValidationError{})
}

// CommuneTransformer validates a raw commune line and normalizes it into a Commune.
//
// A malformed coordinate string does not reject the line: the commune is kept without
// coordinates and counted under MissingCoordinatesKey, which makes AfterStep report
// COMPLETED_WITH_MISSING_COORDINATES.
type CommuneTransformer struct {
	stepExecution *model.StepExecution
}

var (
	_ port.ItemProcessor[*entity.CommuneCSV, *entity.Commune] = (*CommuneTransformer)(nil)
	_ port.StepExecutionListener                              = (*CommuneTransformer)(nil)
)

// NewCommuneTransformer creates a CommuneTransformer.
func NewCommuneTransformer() *CommuneTransformer {
	return &CommuneTransformer{}
}

// BeforeStep keeps the StepExecution whose accumulator holds the missing coordinates counter.
func (p *CommuneTransformer) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	p.stepExecution = stepExecution
}

// AfterStep reports COMPLETED_WITH_MISSING_COORDINATES when a commune was stored without coordinates.
func (p *CommuneTransformer) AfterStep(ctx context.Context, stepExecution *model.StepExecution) model.ExitStatus {
	logger.Infof("After Step CSV Import")
	logger.Infof("%s", stepExecution.Summary())
	if missing := stepExecution.Accumulator.Get(MissingCoordinatesKey); missing > 0 {
		logger.Infof("%d commune(s) imported without coordinates.", missing)
		return model.ExitStatusCompletedWithMissingCoordinates
	}
	return model.ExitStatusCompleted
}

// Process validates item and returns the normalized commune.
func (p *CommuneTransformer) Process(ctx context.Context, item *entity.CommuneCSV) (*entity.Commune, error) {
	if item == nil {
		return nil, exception.NewBatchError("commune_transformer", "nil input item", nil, false, false)
	}
	logger.Debugf("Before Process => %s", item)

	if err := validate(item); err != nil {
		return nil, err
	}

	commune := &entity.Commune{
		CodeInsee:  value(item.CodeInsee),
		CodePostal: value(item.CodePostal),
		Nom:        NormalizeName(value(item.Nom)),
	}

	if item.CoordonneesGPS != nil && coordinatesPattern.MatchString(*item.CoordonneesGPS) {
		commune.Latitude, commune.Longitude = parseCoordinates(*item.CoordonneesGPS)
	} else if item.CoordonneesGPS != nil {
		err := &ValidationError{
			Field:  FieldCoordinates,
			Value:  *item.CoordonneesGPS,
			Reason: "Les coordonnées GPS sont incorrectes ! " + *item.CoordonneesGPS,
		}
		logger.Warnf("Commune %s kept without coordinates: %v", commune.CodeInsee, err)
	}
	if !commune.HasCoordinates() {
		p.countMissing(ctx)
	}

	logger.Debugf("After Process => %s => %s", item, commune)
	return commune, nil
}

func (p *CommuneTransformer) countMissing(ctx context.Context) {
	se := port.StepExecutionFromContext(ctx)
	if se == nil {
		se = p.stepExecution
	}
	if se == nil {
		return
	}
	se.Accumulator.Increment(MissingCoordinatesKey)
}

func validate(item *entity.CommuneCSV) error {
	if item.CodeInsee != nil && !codeInseePattern.MatchString(*item.CodeInsee) {
		return &ValidationError{Field: FieldCodeInsee, Value: *item.CodeInsee, Reason: "Le code Insee ne contient pas 5 chiffres"}
	}
	if item.CodePostal != nil && !codePostalPattern.MatchString(*item.CodePostal) {
		return &ValidationError{Field: FieldCodePostal, Value: *item.CodePostal, Reason: "Le code Postal ne contient pas 5 chiffres"}
	}
	if item.Nom != nil && !nomPattern.MatchString(*item.Nom) {
		return &ValidationError{Field: FieldNom, Value: *item.Nom, Reason: "Le nom de la commune n'est pas composé uniquement de lettres, espaces et tirets"}
	}
	return nil
}

// NormalizeName capitalizes every word of name, then expands the L, D, St and Ste abbreviations.
func NormalizeName(name string) string {
	normalized := capitalizeFully(name)
	for _, rule := range nameRules {
		normalized = rule.pattern.ReplaceAllString(normalized, rule.replacement)
	}
	return normalized
}

// capitalizeFully lower-cases s and upper-cases the first letter of each word. Words are
// delimited by white space and apostrophes.
func capitalizeFully(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	upperNext := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r) || r == '\'':
			upperNext = true
		case upperNext:
			r = unicode.ToTitle(r)
			upperNext = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseCoordinates(s string) (lat, lon *float64) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	latitude, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, nil
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, nil
	}
	return &latitude, &longitude
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
