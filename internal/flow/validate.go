package flow

import (
	"regexp"
	"strings"

	"github.com/nexd/nexd/internal/collab"
)

// Field names used in validation errors.
const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldStreet    = "street"
	FieldNumber    = "number"
	FieldZipCode   = "zipCode"
	FieldCity      = "city"
	FieldPhone     = "phoneNumber"
	FieldItems     = "items"
)

var (
	zipPattern   = regexp.MustCompile(`^[0-9]{5}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()/-]{2,}$`)
)

var fieldLabels = map[string]string{
	FieldFirstName: "first name",
	FieldLastName:  "last name",
	FieldStreet:    "street",
	FieldNumber:    "house number",
	FieldZipCode:   "zip code",
	FieldCity:      "city",
	FieldPhone:     "phone number",
	FieldItems:     "items",
}

func fieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

func normalizeZip(zip string) string { return strings.TrimSpace(zip) }

func checkZip(verr *collab.ValidationError, zip string) {
	if !zipPattern.MatchString(zip) {
		verr.Add(FieldZipCode, "must be 5 digits")
	}
}

// checkPhone accepts an empty number.
func checkPhone(verr *collab.ValidationError, phone string) {
	if phone != "" && !phonePattern.MatchString(phone) {
		verr.Add(FieldPhone, "is not a phone number")
	}
}

func checkRequired(verr *collab.ValidationError, field, value string) {
	if strings.TrimSpace(value) == "" {
		verr.Add(field, "is required")
	}
}
