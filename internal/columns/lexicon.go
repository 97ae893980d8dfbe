package columns

import (
	"slices"

	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// LexiconEntry lists the known header spellings of one canonical field.
type LexiconEntry struct {
	Field    domain.CanonicalField
	Variants []string
}

// lexicon is read-only. Entries follow domain.AllFields order, which is also
// the tie-break order during resolution.
var lexicon = [...]LexiconEntry{
	{domain.SerialNumber, []string{"sr no", "sr.no", "serial no", "s.no", "sno", "serial number", "#"}},
	{domain.AcknowledgementNumber, []string{
		"acknowledgement no", "ack no", "ackno", "ack", "acknowledgment no",
		"acknowledgement number", "acknowledgment number", "ref no", "reference no",
	}},
	{domain.BankAccountNumber, []string{
		"bank account no", "bank ac no", "bank a/c no", "ac no", "a/c no", "account no",
		"account number", "bank account number", "beneficiary account", "beneficiary ac",
	}},
	{domain.IFSCCode, []string{"ifsc code", "ifsc", "bank code"}},
	{domain.Address, []string{"address", "beneficiary address", "account holder address", "location"}},
	{domain.Amount, []string{"amount", "transaction amount", "txn amount", "transfer amount", "fraud amount"}},
	{domain.DisputedAmount, []string{"disputed amount", "disputed", "claim amount", "disputed amt", "chargeback amount"}},
	{domain.BankName, []string{"bank name", "bank", "beneficiary bank", "receiving bank"}},
	{domain.District, []string{"district", "dist", "district name"}},
	{domain.State, []string{"state", "state name", "province"}},
}

// Lexicon returns a copy of the variant table.
func Lexicon() []LexiconEntry {
	out := make([]LexiconEntry, len(lexicon))
	for i, e := range lexicon {
		out[i] = LexiconEntry{Field: e.Field, Variants: slices.Clone(e.Variants)}
	}
	return out
}

// Variants returns a copy of the known spellings for f.
func Variants(f domain.CanonicalField) []string {
	for _, e := range lexicon {
		if e.Field == f {
			return slices.Clone(e.Variants)
		}
	}
	return nil
}
