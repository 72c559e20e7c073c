package entities

import (
	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer"
)

func init() {
	registerCompanies()
}

func registerCompanies() {
	importer.Register(importer.Definition{
		Info: importer.EntityInfo{
			Key:   "companies",
			Label: "Companies",
			Table: "companies",
		},
		Fields: []importer.FieldSpec{
			{Name: "name", Type: importer.FieldText, Required: true},
			{Name: "tax_id", Type: importer.FieldText, Required: true, Normalizer: stripSeparators},
			{Name: "email", Type: importer.FieldText},
			{Name: "phone", Type: importer.FieldText},
			{Name: "city", Type: importer.FieldText},
			{Name: "activate", Type: importer.FieldBool},
		},
		NaturalKey:    "tax_id",
		ActivateField: "activate",
		Rules: []importer.ValidationRule{
			{Field: "name", Kind: importer.RuleRequired},
			{Field: "name", Kind: importer.RuleUniqueInBatch},
			{Field: "name", Kind: importer.RuleUniqueInStore, Message: "a company with this name already exists"},
			{Field: "tax_id", Kind: importer.RuleRequired},
			{Field: "tax_id", Kind: importer.RuleFormat, Pattern: cuitPattern, Message: "tax id must be 11 digits (dashes allowed)"},
			{Field: "tax_id", Kind: importer.RuleUniqueInBatch},
			{Field: "tax_id", Kind: importer.RuleUniqueInStore, Message: "a company with this tax id already exists"},
			{Field: "email", Kind: importer.RuleFormat, Pattern: emailPattern, Message: "invalid email address"},
			{Field: "email", Kind: importer.RuleCustom, Severity: importer.SeverityWarning, Check: missingEmail},
		},
		BuildFields: func(row importer.RawRow, _ *importer.ReferenceMap) (map[string]any, error) {
			return map[string]any{
				"name":   textOrNil(row, "name"),
				"tax_id": stripSeparators(row.Get("tax_id").Raw),
				"email":  textOrNil(row, "email"),
				"phone":  textOrNil(row, "phone"),
				"city":   textOrNil(row, "city"),
			}, nil
		},
	})
}

// missingEmail flags companies imported without a contact email. Advisory
// only: billing follows up out of band.
func missingEmail(row importer.RawRow) *importer.ValidationError {
	if row.Get("email").IsEmpty() {
		return &importer.ValidationError{
			Field:    "email",
			Message:  "no contact email on record",
			Severity: importer.SeverityWarning,
		}
	}
	return nil
}
