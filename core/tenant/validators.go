package tenant

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/vilmosmisota/sportapp/core"
)

var (
	slugTag   = "slug"
	slugText  = "only lowercase letters, digits and dashes are allowed"
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(slugTag, slugValidation)
	core.RegisterCustomTranslation(validate, translator, slugTag, slugText)
}

func slugValidation(fl validator.FieldLevel) bool {
	return slugRegex.MatchString(fl.Field().String())
}
