package payment

import "strings"

// scaThresholdMinorUnits is the regulatory exemption ceiling: transactions
// at or below 30.00 in minor units never require strong customer
// authentication.
const scaThresholdMinorUnits = 3000

// RequiresStrongAuth decides whether a card confirmation needs an
// additional authentication step (3-D Secure equivalent). Pure function:
// re-evaluated on every call, never cached across amount changes.
func RequiresStrongAuth(amountMinorUnits int64, billingCountry string, regulatedCountries []string) bool {
	if amountMinorUnits <= scaThresholdMinorUnits {
		return false
	}
	country := strings.ToUpper(strings.TrimSpace(billingCountry))
	if country == "" {
		return false
	}
	for _, c := range regulatedCountries {
		if strings.ToUpper(strings.TrimSpace(c)) == country {
			return true
		}
	}
	return false
}
