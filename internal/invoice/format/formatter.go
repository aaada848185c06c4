package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

// DefaultInvoiceNumberTemplate renders numbers such as INV-2026-00042.
const DefaultInvoiceNumberTemplate = "{PREFIX}-{YYYY}-{SEQ5}"

// FormatInvoiceNumber formats a human-readable invoice number from a
// template, the issuing prefix, the issue time and a sequence. It has no
// side effects.
func FormatInvoiceNumber(
	template string,
	prefix string,
	issuedAt time.Time,
	seq int64,
) (string, error) {

	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}

	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := strings.ReplaceAll(template, "{PREFIX}", prefix)

	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))

	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}

		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}

		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}

	return out, nil
}

// YearPrefix returns the part of a default-template number shared by every
// invoice of the year, e.g. "INV-2026-".
func YearPrefix(prefix string, issuedAt time.Time) string {
	return prefix + "-" + issuedAt.Format("2006") + "-"
}

// ParseSequence extracts the sequence from a number that starts with
// yearPrefix. Numbers past the padded width (INV-2026-100000) parse as well.
func ParseSequence(number, yearPrefix string) (int64, error) {
	raw, ok := strings.CutPrefix(number, yearPrefix)
	if !ok || raw == "" {
		return 0, fmt.Errorf("invoice number %q does not match %q", number, yearPrefix)
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid invoice sequence in %q", number)
	}
	return seq, nil
}
