package domain

import "strings"

// Actor: пользователь, действующий в рамках организации.
// Идентичность приходит от внешнего слоя аутентификации.
type Actor struct {
	OrganizationID string
	UserID         string
}

// Validate проверяет, что оба идентификатора заданы.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.OrganizationID) == "" {
		return Validationf("organization id is required")
	}
	if strings.TrimSpace(a.UserID) == "" {
		return Validationf("user id is required")
	}
	return nil
}
