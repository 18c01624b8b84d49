package verification

import (
	"strings"
	"unicode"
)

// legalSuffixes are stripped from the end of a normalized name, longest first
var legalSuffixes = []string{
	"public company limited",
	"company limited",
	"co ltd",
	"sdn bhd",
	"pte ltd",
	"limited",
	"ltd",
	"company",
	"co",
	"incorporated",
	"inc",
	"corporation",
	"corp",
	"llc",
	"plc",
	"pcl",
	"gmbh",
	"จำกัด มหาชน",
	"จำกัด",
}

var legalPrefixes = []string{
	"บริษัท",
}

// NormalizeCompanyName folds case, punctuation and whitespace and strips
// legal-form suffixes, so "SCB Bank Public Company Limited" and "scb bank"
// compare equal.
func NormalizeCompanyName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r):
			sb.WriteRune(r)
		case r == '&':
			sb.WriteString(" and ")
		default:
			sb.WriteRune(' ')
		}
	}
	normalized := strings.Join(strings.Fields(sb.String()), " ")

	for _, prefix := range legalPrefixes {
		normalized = strings.TrimSpace(strings.TrimPrefix(normalized, prefix))
	}

	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range legalSuffixes {
			if normalized == suffix {
				continue
			}
			if strings.HasSuffix(normalized, " "+suffix) {
				normalized = strings.TrimSpace(strings.TrimSuffix(normalized, suffix))
				stripped = true
				break
			}
		}
	}
	return normalized
}
