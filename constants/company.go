package constants

// Company identifies the carrier a bill was issued by. Values are stored in extract_job.company.
type Company string

const (
	CompanyNTT          Company = "ntt"
	CompanyOtsuka       Company = "otsuka"
	CompanyNTTDocomoBiz Company = "ntt_docomo_biz"
	CompanySoftBank     Company = "softbank"
	CompanyForval       Company = "forval"
	CompanyOther        Company = "other"
)

// Companies lists every company in evaluation/output order.
var Companies = []Company{
	CompanyNTT,
	CompanyOtsuka,
	CompanyNTTDocomoBiz,
	CompanySoftBank,
	CompanyForval,
	CompanyOther,
}

// ParseCompany maps a stored value back to a Company.
func ParseCompany(s string) (Company, bool) {
	for _, c := range Companies {
		if string(c) == s {
			return c, true
		}
	}
	return CompanyOther, false
}
