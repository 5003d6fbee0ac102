package parsers

import (
	"fmt"
	"strings"
)

// Export field names
const (
	FieldNumber       = "number"
	FieldDate         = "date"
	FieldPaymentDate  = "payment_date"
	FieldTaxID        = "tax_id"
	FieldBeneficiary  = "beneficiary"
	FieldCounterparty = "counterparty"
	FieldCurrency     = "currency"
	FieldAmount       = "amount"
	FieldStatus       = "status"
	FieldNotes        = "notes"
	FieldDetail       = "detail"
)

// ColumnAliases maps a field name to the header labels it may appear under.
// Labels are compared folded (lowercase, accent-free), exact match first and
// then by containment.
type ColumnAliases map[string][]string

// ExportLayout describes one export: its column aliases and which fields
// must be present
type ExportLayout struct {
	Columns  ColumnAliases `mapstructure:"columns" json:"columns"`
	Required []string      `mapstructure:"required" json:"required"`
}

// Validate checks that every required field has at least one alias
func (el ExportLayout) Validate(name string) error {
	for _, field := range el.Required {
		aliases := el.Columns[field]
		if len(aliases) == 0 {
			return fmt.Errorf("%s export: required field %q has no column aliases", name, field)
		}
		for _, alias := range aliases {
			if strings.TrimSpace(alias) == "" {
				return fmt.Errorf("%s export: empty alias for field %q", name, field)
			}
		}
	}
	return nil
}

// ExportConfig holds the layouts of the three payment exports
type ExportConfig struct {
	Requests      ExportLayout `mapstructure:"requests" json:"requests"`
	Confirmations ExportLayout `mapstructure:"confirmations" json:"confirmations"`
	Receipts      ExportLayout `mapstructure:"receipts" json:"receipts"`

	// ExcludedStatuses drops request rows whose folded status contains any entry
	ExcludedStatuses []string `mapstructure:"excluded_statuses" json:"excluded_statuses"`

	// HeaderScanRows bounds the search for the header row of an export
	HeaderScanRows int `mapstructure:"header_scan_rows" json:"header_scan_rows"`
}

// DefaultExportConfig returns the layouts of the standard exports
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Requests: ExportLayout{
			Columns: ColumnAliases{
				FieldNumber:      {"nro solicitud", "numero de solicitud", "solicitud", "nro"},
				FieldDate:        {"fecha", "fecha solicitud"},
				FieldTaxID:       {"cuit", "cuit beneficiario", "cuil"},
				FieldBeneficiary: {"beneficiario", "proveedor", "razon social"},
				FieldCurrency:    {"moneda"},
				FieldAmount:      {"importe", "monto"},
				FieldStatus:      {"estado"},
				FieldNotes:       {"observaciones", "notas", "comentarios"},
			},
			Required: []string{FieldDate, FieldAmount},
		},
		Confirmations: ExportLayout{
			Columns: ColumnAliases{
				FieldNumber:      {"nro solicitud", "numero de solicitud", "solicitud", "nro"},
				FieldPaymentDate: {"fecha pago", "fecha de pago", "fecha"},
			},
			Required: []string{FieldNumber, FieldPaymentDate},
		},
		Receipts: ExportLayout{
			Columns: ColumnAliases{
				FieldDate:         {"fecha", "fecha cobro"},
				FieldTaxID:        {"cuit", "cuil"},
				FieldCounterparty: {"razon social", "cliente", "proveedor", "beneficiario"},
				FieldCurrency:     {"moneda"},
				FieldAmount:       {"importe", "monto"},
				FieldDetail:       {"detalle", "concepto", "observaciones"},
			},
			Required: []string{FieldDate, FieldAmount},
		},
		ExcludedStatuses: []string{"rechazada", "anulada"},
		HeaderScanRows:   10,
	}
}

// Validate checks the export configuration
func (ec ExportConfig) Validate() error {
	if ec.HeaderScanRows <= 0 {
		return fmt.Errorf("header scan rows must be positive, got %d", ec.HeaderScanRows)
	}
	if err := ec.Requests.Validate("requests"); err != nil {
		return err
	}
	if err := ec.Confirmations.Validate("confirmations"); err != nil {
		return err
	}
	return ec.Receipts.Validate("receipts")
}
