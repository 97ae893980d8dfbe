package columns

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bank Account No", "bank account no"},
		{"  Bank_A/C-No. ", "bank a c no"},
		{"Amount (₹)", "amount"},
		{"S.No", "s no"},
		{"Ack#No", "ackno"},
		{"\tDistrict\nName  ", "district name"},
		{"IFSC   Code", "ifsc code"},
		{"#", ""},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "42", NormalizeValue(42))
	assert.Equal(t, "1 5", NormalizeValue(1.5))
	assert.Equal(t, "none", NormalizeValue(nil))
	assert.Equal(t, "state", NormalizeValue(" STATE "))
}

func TestNormalize_Idempotent(t *testing.T) {
	alphabet := []rune("abcXYZ019 _-./\t\n#()₹$é,;:İ")
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		n := rng.IntN(24)
		rs := make([]rune, n)
		for j := range rs {
			rs[j] = alphabet[rng.IntN(len(alphabet))]
		}
		s := string(rs)
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("abc", "abc"))
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.InDelta(t, 20.0/22.0, Ratio("bank acct no", "bank ac no"), 1e-9)
	assert.InDelta(t, 12.0/21.0, Ratio("disputed amount", "amount"), 1e-9)
	assert.Equal(t, Ratio("ab", "ba"), Ratio("ba", "ab"))
}

func TestTokenSortRatio(t *testing.T) {
	assert.Equal(t, 1.0, TokenSortRatio("no account", "account no"))
	assert.Less(t, Ratio("no account", "account no"), 1.0)
}

func TestPartialRatio(t *testing.T) {
	assert.Equal(t, 1.0, PartialRatio("amount", "disputed amount"))
	assert.Equal(t, 1.0, PartialRatio("disputed amount", "amount"))
	assert.Equal(t, 0.0, PartialRatio("", "abc"))
}

func TestMatchScoreIgnoresSubstrings(t *testing.T) {
	match := MatchScore("disputed amount", "amount")
	display := Similarity("disputed amount", "amount")

	assert.Less(t, match, MatchThreshold)
	assert.Equal(t, 1.0, display)
}

func TestScoresBounded(t *testing.T) {
	pairs := [][2]string{
		{"bank", "bank account number"},
		{"x", "y"},
		{"state name", "name state"},
		{"₹₹", "rs"},
	}
	for _, p := range pairs {
		for _, s := range []float64{Ratio(p[0], p[1]), TokenSortRatio(p[0], p[1]), PartialRatio(p[0], p[1]), Similarity(p[0], p[1])} {
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestLexiconIsCopied(t *testing.T) {
	v := Variants(domain.Amount)
	require.NotEmpty(t, v)
	v[0] = "mutated"
	assert.Equal(t, "amount", Variants(domain.Amount)[0])

	lex := Lexicon()
	require.Len(t, lex, len(domain.AllFields()))
	lex[0].Variants[0] = "mutated"
	assert.Equal(t, "sr no", Lexicon()[0].Variants[0])

	for i, f := range domain.AllFields() {
		assert.Equal(t, f, lex[i].Field)
	}
}

func TestResolve_ExactVariantRecognition(t *testing.T) {
	for _, e := range Lexicon() {
		for _, v := range e.Variants {
			m := Resolve([]string{v})
			h, ok := m.Header(e.Field)
			require.True(t, ok, "variant %q not mapped to %s", v, e.Field)
			assert.Equal(t, v, h)
			assert.Equal(t, 1.0, m.ConfidenceScores[e.Field], "variant %q", v)
		}
	}
}

func TestResolve_ExactMatchIsCaseAndSpaceInsensitive(t *testing.T) {
	m := Resolve([]string{"  IFSC CODE "})
	assert.Equal(t, "  IFSC CODE ", m.IFSCCode)
	assert.Equal(t, 1.0, m.ConfidenceScores[domain.IFSCCode])
}

func TestResolve_EndToEndHeaders(t *testing.T) {
	m := Resolve([]string{"Bank Account No", "Ack No", "Amount", "Bank Name"})

	assert.Equal(t, "Bank Account No", m.BankAccountNumber)
	assert.Equal(t, "Ack No", m.AcknowledgementNumber)
	assert.Equal(t, "Amount", m.Amount)
	assert.Equal(t, "Bank Name", m.BankName)
	for _, f := range []domain.CanonicalField{domain.BankAccountNumber, domain.AcknowledgementNumber, domain.Amount, domain.BankName} {
		assert.Equal(t, 1.0, m.ConfidenceScores[f], "field %s", f)
	}
	assert.Empty(t, m.AmbiguousMappings)
	assert.Len(t, m.Assigned(), 4)
}

func TestResolve_Fuzzy(t *testing.T) {
	m := Resolve([]string{"Bank Acct No"})

	assert.Equal(t, "Bank Acct No", m.BankAccountNumber)
	assert.InDelta(t, 20.0/22.0, m.ConfidenceScores[domain.BankAccountNumber], 1e-9)
	assert.Empty(t, m.AmbiguousMappings)
}

func TestResolve_ShortVariantDoesNotClaimLongerHeader(t *testing.T) {
	m := Resolve([]string{"Disputed Amount (Rs)"})

	assert.Equal(t, "Disputed Amount (Rs)", m.DisputedAmount)
	_, ok := m.Header(domain.Amount)
	assert.False(t, ok)
	assert.Empty(t, m.AmbiguousMappings)
}

func TestResolve_Ambiguity(t *testing.T) {
	m := Resolve([]string{"A No"})

	assert.Equal(t, "A No", m.BankAccountNumber)
	assert.InDelta(t, 8.0/9.0, m.ConfidenceScores[domain.BankAccountNumber], 1e-9)
	assert.Empty(t, m.AcknowledgementNumber)
	assert.Equal(t,
		[]domain.CanonicalField{domain.AcknowledgementNumber, domain.BankAccountNumber},
		m.AmbiguousMappings["A No"])
}

func TestResolve_OverrideRule(t *testing.T) {
	tests := []struct {
		name      string
		headers   []string
		want      string
		wantScore float64
	}{
		{"later exact match steals weaker slot", []string{"Account", "Account Number"}, "Account Number", 1.0},
		{"earlier exact match is kept", []string{"Account Number", "Account"}, "Account Number", 1.0},
		{"equal score keeps first", []string{"Account No", "Account Number"}, "Account No", 1.0},
		{"single fuzzy header", []string{"Account"}, "Account", 14.0 / 17.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Resolve(tt.headers)
			assert.Equal(t, tt.want, m.BankAccountNumber)
			assert.InDelta(t, tt.wantScore, m.ConfidenceScores[domain.BankAccountNumber], 1e-9)
		})
	}
}

func TestResolve_UnmatchedHeadersAreSkipped(t *testing.T) {
	headers := []string{"Remarks", "Date", "", "Bank Account No"}
	m := Resolve(headers)

	assert.Equal(t, []domain.CanonicalField{domain.BankAccountNumber}, m.Assigned())
	assert.Equal(t, []string{"Remarks", "Date", ""}, UnmappedHeaders(headers, m))
}

func TestResolve_EachHeaderUsedOnce(t *testing.T) {
	headers := []string{"Sr No", "Ack No", "Account", "Bank A/C No", "IFSC", "Address", "Amount",
		"Disputed", "Bank", "District", "State", "A No", "Txn Amount"}
	m := Resolve(headers)

	seen := make(map[string]domain.CanonicalField)
	for _, f := range m.Assigned() {
		h, _ := m.Header(f)
		prev, dup := seen[h]
		assert.False(t, dup, "header %q assigned to %s and %s", h, prev, f)
		seen[h] = f
	}
}

func TestResolve_Concurrent(t *testing.T) {
	headers := []string{"Bank Acct No", "Ack No", "Txn Amount", "Bank", "A No", "Dist"}
	want := Resolve(headers)

	var wg sync.WaitGroup
	results := make([]*domain.ColumnMapping, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Resolve(headers)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestSuggestions(t *testing.T) {
	got := Suggestions("Amt Disputed", 3)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	assert.Len(t, Suggestions("x", -1), len(domain.AllFields()))
}
