package entities

import (
	"time"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

// personnelTypes are the accepted values for the type column.
var personnelTypes = []string{"driver", "administrative", "mechanic"}

func init() {
	registerPersonnel()
}

func registerPersonnel() {
	importer.Register(importer.Definition{
		Info: importer.EntityInfo{
			Key:   "personnel",
			Label: "Personnel",
			Table: "personnel",
		},
		Fields: []importer.FieldSpec{
			{Name: "first_name", Type: importer.FieldText, Required: true},
			{Name: "last_name", Type: importer.FieldText, Required: true},
			{Name: "national_id", Type: importer.FieldText, Required: true, Normalizer: stripSeparators},
			{Name: "type", Type: importer.FieldEnum, Required: true},
			{Name: "license_number", Type: importer.FieldText},
			{Name: "license_expiry", Type: importer.FieldDate},
			{Name: "company", Type: importer.FieldText, Required: true},
			{Name: "activate", Type: importer.FieldBool},
		},
		NaturalKey:    "national_id",
		ActivateField: "activate",
		References: []importer.ReferenceSpec{
			{Field: "company", Entity: "companies", Column: "company_id", Collection: "personnel_ids"},
		},
		Rules: []importer.ValidationRule{
			{Field: "first_name", Kind: importer.RuleRequired},
			{Field: "last_name", Kind: importer.RuleRequired},
			{Field: "national_id", Kind: importer.RuleRequired},
			{Field: "national_id", Kind: importer.RuleFormat, Pattern: dniPattern, Message: "national id must be 7 or 8 digits"},
			{Field: "national_id", Kind: importer.RuleUniqueInBatch},
			{Field: "national_id", Kind: importer.RuleUniqueInStore, Message: "an active person with this national id already exists"},
			{Field: "type", Kind: importer.RuleFormat, EnumValues: personnelTypes},
			{Field: "company", Kind: importer.RuleRequired},
			{Field: "company", Kind: importer.RuleReference, RefEntity: "companies"},
			{Field: "license_number", Kind: importer.RuleCustom, Check: driverNeedsLicense},
			{Field: "license_expiry", Kind: importer.RuleCustom, Severity: importer.SeverityWarning, Check: expiredLicense},
		},
		BuildFields: func(row importer.RawRow, refs *importer.ReferenceMap) (map[string]any, error) {
			return map[string]any{
				"first_name":     textOrNil(row, "first_name"),
				"last_name":      textOrNil(row, "last_name"),
				"national_id":    stripSeparators(row.Get("national_id").Raw),
				"type":           importer.NormalizeValue(row.Get("type").Raw),
				"license_number": textOrNil(row, "license_number"),
				"license_expiry": dateOrNil(row, "license_expiry"),
				"company_id":     refs.MustResolve("companies", row.Get("company").Raw),
			}, nil
		},
	})
}

// driverNeedsLicense enforces that driver-type rows carry a license number.
func driverNeedsLicense(row importer.RawRow) *importer.ValidationError {
	if importer.NormalizeValue(row.Get("type").Raw) != "driver" {
		return nil
	}
	if row.Get("license_number").IsEmpty() {
		return &importer.ValidationError{
			Field:   "license_number",
			Message: "drivers must have a license number",
		}
	}
	return nil
}

// expiredLicense warns when the license expiry is already in the past.
func expiredLicense(row importer.RawRow) *importer.ValidationError {
	cell := row.Get("license_expiry")
	if cell.Kind != importer.CellDate {
		return nil
	}
	if cell.Date.Before(time.Now().Truncate(24 * time.Hour)) {
		return &importer.ValidationError{
			Field:    "license_expiry",
			Value:    cell.Raw,
			Message:  "license is expired",
			Severity: importer.SeverityWarning,
		}
	}
	return nil
}
