// Package validate cleans and checks free-text input before it is stored.
package validate

import (
	"regexp"
	"strings"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	jsScheme    = regexp.MustCompile(`(?i)javascript:`)
	eventAttr   = regexp.MustCompile(`(?i)on\w+\s*=`)

	phonePattern = regexp.MustCompile(`^09\d{8}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\u00a0", "&nbsp;")
)

// Sanitize drops script blocks, HTML-escapes what is left and strips
// javascript: schemes and on*= handler attributes.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = scriptBlock.ReplaceAllString(s, "")
	s = htmlEscaper.Replace(s)
	s = jsScheme.ReplaceAllString(s, "")
	return eventAttr.ReplaceAllString(s, "")
}

// NormalizePhone removes dashes and whitespace.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\u00a0' {
			return -1
		}
		return r
	}, phone)
}

// Phone accepts Taiwan mobile numbers, 09 followed by eight digits, with
// any dashes or spaces ignored.
func Phone(phone string) error {
	if !phonePattern.MatchString(NormalizePhone(phone)) {
		return common.ErrInvalidPhone
	}
	return nil
}

// Email accepts an empty string.
func Email(email string) error {
	if email == "" || emailPattern.MatchString(email) {
		return nil
	}
	return common.ErrInvalidEmail
}

func Name(name string) error {
	if strings.TrimSpace(name) == "" {
		return common.ErrEmptyName
	}
	return nil
}
