package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/docreview/internal/domain"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// Amount accepts a JSON number or a string such as "1,234.50".
type Amount string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// OCRSpan locates an extracted value on the page.
type OCRSpan struct {
	Field string     `json:"field" validate:"required,max=64"`
	Text  string     `json:"text" validate:"max=1024"`
	Page  int        `json:"page" validate:"gte=0"`
	BBox  [4]float64 `json:"bbox"`
}

// StructuredDocument is the contract delivered by the extraction collaborator.
type StructuredDocument struct {
	ID            string            `json:"id,omitempty" validate:"omitempty,max=64,printascii"`
	FileName      string            `json:"file_name" validate:"max=512"`
	Vendor        string            `json:"vendor" validate:"max=256"`
	Buyer         string            `json:"buyer" validate:"max=256"`
	InvoiceNo     string            `json:"invoice_no" validate:"max=128"`
	IssueDate     string            `json:"issue_date" validate:"omitempty,isodate"`
	Amount        Amount            `json:"amount" validate:"omitempty,amount"`
	TaxAmount     Amount            `json:"tax_amount" validate:"omitempty,amount"`
	Currency      string            `json:"currency" validate:"omitempty,len=3,alpha"`
	Category      string            `json:"category" validate:"max=128"`
	RawFields     map[string]string `json:"raw_fields" validate:"max=200,dive,keys,required,max=128,endkeys,max=4096"`
	OCRConfidence float64           `json:"ocr_confidence" validate:"gte=0,lte=1"`
	OCRSpans      []OCRSpan         `json:"ocr_spans,omitempty" validate:"max=1000,dive"`
}

// Fields converts the contract into document fields. Call after validation.
func (sd StructuredDocument) Fields() (domdoc.Fields, error) {
	amount, err := domdoc.ParseAmount(string(sd.Amount))
	if err != nil {
		return domdoc.Fields{}, err
	}
	tax, err := domdoc.ParseAmount(string(sd.TaxAmount))
	if err != nil {
		return domdoc.Fields{}, domain.NewValidation("tax_amount", err.Error())
	}
	date, err := domdoc.ParseDate(sd.IssueDate)
	if err != nil {
		return domdoc.Fields{}, err
	}
	return domdoc.Fields{
		FileName:      strings.TrimSpace(sd.FileName),
		Vendor:        strings.TrimSpace(sd.Vendor),
		Buyer:         strings.TrimSpace(sd.Buyer),
		InvoiceNo:     strings.TrimSpace(sd.InvoiceNo),
		Category:      strings.TrimSpace(sd.Category),
		Currency:      sd.Currency,
		IssueDate:     date,
		Amount:        amount,
		TaxAmount:     tax,
		OCRConfidence: sd.OCRConfidence,
		Structured:    sd.RawFields,
	}, nil
}

// NewValidator returns a validator with the ingest contract's custom tags registered.
// It resolves field names from json tags so errors name the wire field.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := domdoc.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := domdoc.ParseAmount(fl.Field().String())
		return err == nil
	})
	return v
}

// AsValidationError maps validator errors onto the domain validation error of the first field.
func AsValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		// Namespace is "<Struct>.<json path>"; the struct name means nothing on the wire.
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		return domain.NewValidation(field, fmt.Sprintf("failed %q", fe.Tag()))
	}
	return domain.NewValidation("", err.Error())
}
