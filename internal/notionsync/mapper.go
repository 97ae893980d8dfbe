package notionsync

import (
	"strings"

	"github.com/jomei/notionapi"
	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// Property names of the Notion accounts database.
const (
	PropAccountNumber       = "Account Number"
	PropDatasetID           = "Dataset ID"
	PropAcknowledgements    = "Acknowledgement Numbers"
	PropIFSCCode            = "IFSC Code"
	PropAddress             = "Address"
	PropBank                = "Bank"
	PropState               = "State"
	PropDistrict            = "District"
	PropTotalAmount         = "Total Amount"
	PropTotalDisputedAmount = "Total Disputed Amount"
	PropTransactions        = "Transactions"
	PropRiskScore           = "Risk Score"
)

// Notion rejects rich text runs over 2000 characters and select options over
// 100 or containing commas.
const (
	maxTextLength   = 2000
	maxOptionLength = 100
)

// AccountToNotionProperties converts an aggregated account to the page
// properties of the accounts database. Empty text and select values are
// left out so an update does not blank a value set by hand in Notion.
func AccountToNotionProperties(datasetID string, acc domain.AggregatedAccount) notionapi.Properties {
	props := notionapi.Properties{
		PropAccountNumber: notionapi.TitleProperty{
			Title: []notionapi.RichText{textRun(acc.AccountNumber)},
		},
		PropDatasetID:           richText(datasetID),
		PropTotalAmount:         notionapi.NumberProperty{Number: acc.TotalAmount},
		PropTotalDisputedAmount: notionapi.NumberProperty{Number: acc.TotalDisputedAmount},
		PropTransactions:        notionapi.NumberProperty{Number: float64(acc.TotalTransactions)},
		PropRiskScore:           notionapi.NumberProperty{Number: acc.RiskScore},
	}

	for name, v := range map[string]string{
		PropAcknowledgements: acc.AcknowledgementNumbers,
		PropIFSCCode:         acc.IFSCCode,
		PropAddress:          acc.Address,
	} {
		if v != "" {
			props[name] = richText(v)
		}
	}

	for name, v := range map[string]string{
		PropBank:     acc.BankName,
		PropState:    acc.State,
		PropDistrict: acc.District,
	} {
		if opt := optionName(v); opt != "" {
			props[name] = notionapi.SelectProperty{Select: notionapi.Option{Name: opt}}
		}
	}

	return props
}

func textRun(s string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: truncate(s, maxTextLength)},
	}
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{RichText: []notionapi.RichText{textRun(s)}}
}

// optionName makes v acceptable as a select option.
func optionName(v string) string {
	v = strings.Join(strings.Fields(strings.ReplaceAll(v, ",", " ")), " ")
	return truncate(v, maxOptionLength)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// extractAccountNumber reads the title of an accounts page.
func extractAccountNumber(page notionapi.Page) string {
	if prop, ok := page.Properties[PropAccountNumber]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok && len(title.Title) > 0 {
			return title.Title[0].PlainText
		}
	}
	return ""
}
