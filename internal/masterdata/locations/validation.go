package locations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// normalize trims free text and upper-cases the code and type.
func normalize(l Location) Location {
	upper := cases.Upper(language.Und)
	l.Code = upper.String(strings.TrimSpace(l.Code))
	l.Name = strings.TrimSpace(l.Name)
	l.Type = Type(upper.String(strings.TrimSpace(string(l.Type))))
	if l.Type == "" {
		l.Type = TypeWarehouse
	}
	return l
}

func (s *Service) validate(l Location) error {
	if err := s.validator.Struct(l); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if strings.ContainsAny(l.Code, " \t") {
		return fmt.Errorf("%w: code must not contain whitespace", shared.ErrValidation)
	}
	if l.IsDefault && !l.Active {
		return fmt.Errorf("%w: default location must be active", shared.ErrValidation)
	}
	return nil
}
