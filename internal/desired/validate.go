package desired

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalid wraps every validation failure of a document.
var ErrInvalid = errors.New("desired: invalid document")

var propertyIDPattern = regexp.MustCompile(`^(properties/)?[0-9]+$`)

// measurementUnits are the units the Admin API accepts for custom metrics.
var measurementUnits = map[string]bool{
	"STANDARD": true, "CURRENCY": true,
	"FEET": true, "METERS": true, "KILOMETERS": true, "MILES": true,
	"MILLISECONDS": true, "SECONDS": true, "MINUTES": true, "HOURS": true,
}

// documentValidate is shared; validator caches struct metadata per type.
var documentValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}

		return name
	})

	mustRegister(v, map[string]validator.Func{
		"propertyid": func(fl validator.FieldLevel) bool {
			return propertyIDPattern.MatchString(strings.TrimSpace(fl.Field().String()))
		},
		"measurementunit": func(fl validator.FieldLevel) bool {
			return measurementUnits[fl.Field().String()]
		},
	})

	return v
}

// mustRegister adds custom tags to v. A registration error is a
// programming mistake, so it panics at package init.
func mustRegister(v *validator.Validate, tags map[string]validator.Func) {
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("desired: registering validation %q: %v", tag, err))
		}
	}
}

// Validate checks field constraints and uniqueness of properties and
// local keys. All problems are joined into one error wrapping ErrInvalid.
func (d *Document) Validate() error {
	var errs []error

	if err := documentValidate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}

		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	errs = append(errs, d.checkUnique()...)

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w:\n%w", ErrInvalid, errors.Join(errs...))
}

// fieldError renders a validator error with the document's own field names.
func fieldError(fe validator.FieldError) error {
	path := strings.TrimPrefix(fe.Namespace(), "Document.")
	path = strings.ReplaceAll(path, ".Items", "")

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s: required", path)
	case "oneof":
		return fmt.Errorf("%s: must be one of %s, got %q", path, fe.Param(), fe.Value())
	case "eq":
		return fmt.Errorf("%s: must be %s, got %q", path, fe.Param(), fe.Value())
	case "max":
		return fmt.Errorf("%s: must be at most %s characters", path, fe.Param())
	case "propertyid":
		return fmt.Errorf("%s: %q is not a property id (want 123 or properties/123)", path, fe.Value())
	case "measurementunit":
		return fmt.Errorf("%s: unknown measurement unit %q", path, fe.Value())
	default:
		return fmt.Errorf("%s: failed %q", path, fe.Tag())
	}
}

// checkUnique rejects repeated properties and repeated local keys within a
// collection. Keys are compared after NFC normalization, like entity ids.
func (d *Document) checkUnique() []error {
	var errs []error

	seenProps := make(map[string]int)

	for i := range d.Properties {
		p := &d.Properties[i]
		name := p.Name()

		if prev, dup := seenProps[name]; dup {
			errs = append(errs, fmt.Errorf("properties[%d]: %s already declared at properties[%d]", i, name, prev))
			continue
		}

		seenProps[name] = i

		errs = append(errs, uniqueKeys(i, "customDimensions", p.CustomDimensions.Items, func(x Dimension) string { return x.ParameterName })...)
		errs = append(errs, uniqueKeys(i, "customMetrics", p.CustomMetrics.Items, func(x Metric) string { return x.ParameterName })...)
		errs = append(errs, uniqueKeys(i, "conversionEvents", p.ConversionEvents.Items, func(x ConversionEvent) string { return x.EventName })...)
	}

	return errs
}

func uniqueKeys[T any](prop int, collection string, items []T, key func(T) string) []error {
	var errs []error

	seen := make(map[string]int, len(items))

	for j, item := range items {
		k := norm.NFC.String(key(item))
		if k == "" {
			continue
		}

		if prev, dup := seen[k]; dup {
			errs = append(errs, fmt.Errorf("properties[%d].%s[%d]: %q duplicates entry %d", prop, collection, j, k, prev))
			continue
		}

		seen[k] = j
	}

	return errs
}
