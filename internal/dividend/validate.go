package dividend

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// isinPattern is the ISO 6166 shape: country, nine alphanumerics, check digit.
// The check digit itself is not verified.
var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

const isinLength = 12

// Validate sets the candidate's final state. Missing payment date, missing
// ISIN or non-positive shares reject the row. Otherwise the row is complete
// when a SEK dividend is known and incomplete when it is not.
func Validate(c *Candidate) {
	if c.State == StateRejected {
		return
	}

	var (
		reasons []string
		field   Field
		code    string
	)
	reject := func(f Field, cd, reason string) {
		if code == "" {
			field, code = f, cd
		}
		reasons = append(reasons, reason)
	}
	if c.PaymentDate.IsZero() {
		reject(FieldPaymentDate, CodeMissingPaymentDate, "missing or invalid payment_date")
	}
	if c.ISIN == "" {
		reject(FieldISIN, CodeMissingISIN, "missing isin")
	}
	if !c.SharesHeld.IsPositive() {
		reject(FieldSharesHeld, CodeSharesNotPositive, "shares_held must be greater than zero, got "+c.SharesHeld.String())
	}
	if len(reasons) > 0 {
		// One error per rejected row; the first failing check names the field.
		c.addError(field, code, "%s", strings.Join(reasons, "; "))
		c.State = StateRejected
		return
	}

	if n := utf8.RuneCountInString(c.ISIN); n != isinLength {
		c.addWarning(FieldISIN, CodeISINLength, "isin %s has %d characters, expected %d", c.ISIN, n, isinLength)
	} else if !isinPattern.MatchString(c.ISIN) {
		c.addWarning(FieldISIN, CodeISINFormat, "isin %s does not look like a valid ISIN", c.ISIN)
	}

	if c.DividendSEK.IsPositive() {
		c.State = StateComplete
		return
	}
	c.State = StateIncomplete
	c.addWarning(FieldDividendSEK, CodeIncomplete, "dividend_amount_sek is missing; row needs review")
}
