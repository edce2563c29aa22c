// internal/workers/compliance/check-compliance/recommendations.go
package checkcompliance

import (
	"fmt"

	"fleet-compliance/internal/models"
)

var domainLabels = map[models.Domain]string{
	models.DomainFranchise:     "LTFRB franchise",
	models.DomainRegistration:  "LTO registration",
	models.DomainInsurance:     "CTPL insurance",
	models.DomainEnvironmental: "emission test certificate",
}

func label(d models.Domain) string {
	if l, ok := domainLabels[d]; ok {
		return l
	}
	return string(d)
}

func recommendationsFor(rec models.ComplianceRecord, st DomainStatus) []string {
	var out []string
	name := label(rec.Domain)

	switch st.Status {
	case models.StatusSuspended:
		reason := rec.SuspensionReason
		if reason == "" {
			reason = "no reason recorded"
		}
		out = append(out, fmt.Sprintf("%s is suspended (%s); resolve the cause before reinstating", name, reason))
	case models.StatusExpired:
		if st.DaysUntilExpiry < 0 {
			out = append(out, fmt.Sprintf("%s expired %d day(s) ago; renew immediately and keep the vehicle off the road", name, -st.DaysUntilExpiry))
		} else {
			out = append(out, fmt.Sprintf("%s is reported invalid by %s; confirm the record with the agency", name, st.Agency))
		}
	case models.StatusExpiringSoon:
		if st.DaysUntilExpiry <= 7 {
			out = append(out, fmt.Sprintf("%s expires in %d day(s); renew now", name, st.DaysUntilExpiry))
		} else {
			out = append(out, fmt.Sprintf("%s expires in %d day(s); schedule the renewal", name, st.DaysUntilExpiry))
		}
	}

	if st.Unverified {
		out = append(out, fmt.Sprintf("%s could not be verified with the agency; status is based on local records", name))
	}
	if st.AgencyExpiryDate != nil && !st.AgencyExpiryDate.Equal(rec.ExpiryDate) {
		out = append(out, fmt.Sprintf("%s expiry on file (%s) differs from the agency record (%s); update the record",
			name, rec.ExpiryDate.Format("2006-01-02"), st.AgencyExpiryDate.Format("2006-01-02")))
	}
	return out
}
