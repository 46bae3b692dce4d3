// Package classify decides which carrier issued a bill from its OCR text.
package classify

import (
	"strings"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

// Rule maps a company to the keywords that identify it.
type Rule struct {
	Company  constants.Company
	Keywords []string
}

// Rules are evaluated in order; the first company with a matching keyword wins.
// NTT must precede NTT Docomo Business because NTT bills often mention OCN.
var Rules = []Rule{
	{constants.CompanyNTT, []string{"NTT東日本", "NTT西日本", "NTT Communications"}},
	{constants.CompanyOtsuka, []string{"大塚商会"}},
	{constants.CompanyNTTDocomoBiz, []string{"NTTドコモビジネス", "docomo Business", "OCN", "ＯＣＮ"}},
	{constants.CompanySoftBank, []string{"SoftBank", "ソフトバンク"}},
	{constants.CompanyForval, []string{"フォーバル", "FORVAL"}},
}

// DetectCompany returns the first company whose keyword appears in text,
// or CompanyOther.
func DetectCompany(text string) constants.Company {
	for _, r := range Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				return r.Company
			}
		}
	}
	return constants.CompanyOther
}
