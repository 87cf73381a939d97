package configsvc

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"eol-tester/internal/domain"
)

// Validator checks a loaded test configuration with struct-tag rules plus the
// cross-field checks tags cannot express. Every violation is collected before
// failing so a bad profile is reported once, completely.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()

	_ = validate.RegisterValidation("stroke", func(fl validator.FieldLevel) bool {
		// Stroke positions are micrometer offsets from home, never negative.
		return fl.Field().Float() >= 0
	})

	return &Validator{validate: validate}
}

// ValidateTestConfiguration returns nil or a single KindConfigurationInvalid
// error aggregating every violation.
func (v *Validator) ValidateTestConfiguration(cfg *domain.TestConfiguration) error {
	var violations []string

	if err := v.validate.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return domain.WrapError(domain.KindConfigurationInvalid, "ValidateTestConfiguration", err)
		}
		for _, fe := range verrs {
			violations = append(violations,
				fmt.Sprintf("field %q failed on the %q rule", fe.Field(), fe.Tag()))
		}
	}

	if cfg.ActivationTemperature > cfg.StandbyTemperature {
		violations = append(violations,
			fmt.Sprintf("activation temperature (%.1f) must not exceed standby temperature (%.1f)",
				cfg.ActivationTemperature, cfg.StandbyTemperature))
	}
	if err := cfg.PassCriteria.Validate(); err != nil {
		violations = append(violations, err.Error())
	}

	if len(violations) > 0 {
		return &domain.Error{
			Kind:    domain.KindConfigurationInvalid,
			Op:      "ValidateTestConfiguration",
			Message: fmt.Sprintf("%d violation(s): %s", len(violations), strings.Join(violations, "; ")),
		}
	}
	return nil
}
