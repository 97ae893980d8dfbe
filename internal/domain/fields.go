package domain

// CanonicalField is one of the fixed column roles every uploaded dataset is
// mapped onto.
type CanonicalField string

const (
	SerialNumber          CanonicalField = "serial_number"
	AcknowledgementNumber CanonicalField = "acknowledgement_number"
	BankAccountNumber     CanonicalField = "bank_account_number"
	IFSCCode              CanonicalField = "ifsc_code"
	Address               CanonicalField = "address"
	Amount                CanonicalField = "amount"
	DisputedAmount        CanonicalField = "disputed_amount"
	BankName              CanonicalField = "bank_name"
	District              CanonicalField = "district"
	State                 CanonicalField = "state"
)

// AllFields returns every canonical field in resolution order.
func AllFields() []CanonicalField {
	return []CanonicalField{
		SerialNumber,
		AcknowledgementNumber,
		BankAccountNumber,
		IFSCCode,
		Address,
		Amount,
		DisputedAmount,
		BankName,
		District,
		State,
	}
}

// RequiredFields returns the fields a dataset must map to be processable.
func RequiredFields() []CanonicalField {
	return []CanonicalField{BankAccountNumber, Amount}
}

// Valid reports whether f is a known canonical field.
func (f CanonicalField) Valid() bool {
	switch f {
	case SerialNumber, AcknowledgementNumber, BankAccountNumber, IFSCCode, Address,
		Amount, DisputedAmount, BankName, District, State:
		return true
	}
	return false
}

// Required reports whether f is one of the required fields.
func (f CanonicalField) Required() bool {
	return f == BankAccountNumber || f == Amount
}

// DisplayName returns the human readable label used in reports and the UI.
func (f CanonicalField) DisplayName() string {
	switch f {
	case SerialNumber:
		return "Serial Number"
	case AcknowledgementNumber:
		return "Acknowledgement Number"
	case BankAccountNumber:
		return "Bank Account Number"
	case IFSCCode:
		return "IFSC Code"
	case Address:
		return "Address"
	case Amount:
		return "Amount"
	case DisputedAmount:
		return "Disputed Amount"
	case BankName:
		return "Bank Name"
	case District:
		return "District"
	case State:
		return "State"
	}
	return string(f)
}

// ParseCanonicalField converts a string into a CanonicalField.
func ParseCanonicalField(s string) (CanonicalField, bool) {
	f := CanonicalField(s)
	return f, f.Valid()
}
