package entities

import (
	"fmt"
	"time"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

const minVehicleYear = 1950

func init() {
	registerVehicles()
}

func registerVehicles() {
	importer.Register(importer.Definition{
		Info: importer.EntityInfo{
			Key:   "vehicles",
			Label: "Vehicles",
			Table: "vehicles",
		},
		Fields: []importer.FieldSpec{
			{Name: "plate", Type: importer.FieldText, Required: true, Normalizer: upperTrim},
			{Name: "brand", Type: importer.FieldText, Required: true},
			{Name: "model", Type: importer.FieldText, Required: true},
			{Name: "year", Type: importer.FieldNumeric},
			{Name: "insurance_expiry", Type: importer.FieldDate},
			{Name: "company", Type: importer.FieldText, Required: true},
			{Name: "activate", Type: importer.FieldBool},
		},
		NaturalKey:    "plate",
		ActivateField: "activate",
		References: []importer.ReferenceSpec{
			{Field: "company", Entity: "companies", Column: "company_id", Collection: "vehicle_ids"},
		},
		Rules: []importer.ValidationRule{
			{Field: "plate", Kind: importer.RuleRequired},
			{Field: "plate", Kind: importer.RuleFormat, Pattern: platePattern, Message: "plate must be ABC123 or AB123CD"},
			{Field: "plate", Kind: importer.RuleUniqueInBatch},
			{Field: "plate", Kind: importer.RuleUniqueInStore, Message: "an active vehicle with this plate already exists"},
			{Field: "brand", Kind: importer.RuleRequired},
			{Field: "model", Kind: importer.RuleRequired},
			{Field: "year", Kind: importer.RuleFormat},
			{Field: "year", Kind: importer.RuleCustom, Check: yearInRange},
			{Field: "company", Kind: importer.RuleRequired},
			{Field: "company", Kind: importer.RuleReference, RefEntity: "companies"},
			{Field: "insurance_expiry", Kind: importer.RuleCustom, Severity: importer.SeverityWarning, Check: expiredInsurance},
		},
		BuildFields: func(row importer.RawRow, refs *importer.ReferenceMap) (map[string]any, error) {
			fields := map[string]any{
				"plate":            upperTrim(row.Get("plate").Raw),
				"brand":            textOrNil(row, "brand"),
				"model":            textOrNil(row, "model"),
				"insurance_expiry": dateOrNil(row, "insurance_expiry"),
				"company_id":       refs.MustResolve("companies", row.Get("company").Raw),
			}
			if cell := row.Get("year"); cell.Kind == importer.CellNumber {
				fields["year"] = int(cell.Number)
			} else {
				fields["year"] = nil
			}
			return fields, nil
		},
	})
}

// yearInRange bounds the model year to something a registrable vehicle can
// actually have.
func yearInRange(row importer.RawRow) *importer.ValidationError {
	cell := row.Get("year")
	if cell.Kind != importer.CellNumber {
		return nil
	}
	year := int(cell.Number)
	max := time.Now().Year() + 1
	if year < minVehicleYear || year > max {
		return &importer.ValidationError{
			Field:   "year",
			Value:   cell.Raw,
			Message: fmt.Sprintf("year must be between %d and %d", minVehicleYear, max),
		}
	}
	return nil
}

// expiredInsurance warns when the insurance expiry is already in the past.
func expiredInsurance(row importer.RawRow) *importer.ValidationError {
	cell := row.Get("insurance_expiry")
	if cell.Kind != importer.CellDate {
		return nil
	}
	if cell.Date.Before(time.Now().Truncate(24 * time.Hour)) {
		return &importer.ValidationError{
			Field:    "insurance_expiry",
			Value:    cell.Raw,
			Message:  "insurance is expired",
			Severity: importer.SeverityWarning,
		}
	}
	return nil
}
