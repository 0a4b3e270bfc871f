package logging

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// Field names that must never reach the log sink unmasked. Matching is
// case-insensitive on substring, so "card_number" also covers
// "customer_card_number".
var sensitiveFieldNames = []string{
	"card_number",
	"cardnumber",
	"pan",
	"cvv",
	"cvc",
	"iban",
	"account_number",
	"token",
	"secret",
	"password",
	"api_key",
	"authorization",
	"client_secret",
}

// panPattern catches card-number-like digit runs embedded in free-form
// values (13-19 contiguous digits).
var panPattern = regexp.MustCompile(`[0-9]{13,19}`)

// Redactor is a structured logger that strips sensitive payment data from
// every record before it is written. All payment-path logging goes through
// it; raw fiber log calls are reserved for non-payment bootstrap code.
type Redactor struct {
	prefix string
}

func NewRedactor(prefix string) *Redactor {
	return &Redactor{prefix: prefix}
}

func (r *Redactor) Info(msg string, fields map[string]interface{}) {
	log.Infof("[%s] %s%s", r.prefix, msg, formatFields(fields))
}

func (r *Redactor) Warn(msg string, fields map[string]interface{}) {
	log.Warnf("[%s] %s%s", r.prefix, msg, formatFields(fields))
}

func (r *Redactor) Error(msg string, fields map[string]interface{}) {
	log.Errorf("[%s] %s%s", r.prefix, msg, formatFields(fields))
}

// RedactFields returns a masked copy of the given fields. Exposed so tests
// and non-logging consumers (e.g. error detail payloads) can reuse the rule.
func RedactFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = redactValue(k, v)
	}
	return out
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(redactValue(k, fields[k])))
	}
	return b.String()
}

func redactValue(key string, value interface{}) interface{} {
	if isSensitiveField(key) {
		return maskTail(fmt.Sprint(value))
	}
	if s, ok := value.(string); ok {
		return maskDigitRuns(s)
	}
	return value
}

func isSensitiveField(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range sensitiveFieldNames {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// maskTail keeps at most the 4 trailing characters of a value.
func maskTail(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// maskDigitRuns replaces card-number-like digit sequences inside a value.
func maskDigitRuns(s string) string {
	return panPattern.ReplaceAllStringFunc(s, maskTail)
}
