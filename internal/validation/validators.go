package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("domain_suffix", validateDomainSuffix); err != nil {
		panic(fmt.Sprintf("failed to register domain_suffix validator: %v", err))
	}
	if err := Validate.RegisterValidation("network_prefix", validateNetworkPrefix); err != nil {
		panic(fmt.Sprintf("failed to register network_prefix validator: %v", err))
	}
}

// validateDomainSuffix accepts a bare domain or domain suffix such as
// "example.com" or ".example.com". Schemes, ports, paths and whitespace are
// rejected because they can never match a normalized origin domain.
func validateDomainSuffix(fl validator.FieldLevel) bool {
	return ValidateDomainSuffix(fl.Field().String()) == nil
}

// validateNetworkPrefix accepts dotted numeric prefixes such as "192.168".
func validateNetworkPrefix(fl validator.FieldLevel) bool {
	return ValidateNetworkPrefix(fl.Field().String()) == nil
}

// ValidateDomainSuffix validates one allow-domain entry.
func ValidateDomainSuffix(value string) error {
	if value == "" {
		return fmt.Errorf("domain suffix cannot be empty")
	}
	if strings.Contains(value, "://") {
		return fmt.Errorf("invalid domain suffix %q: remove the scheme", value)
	}
	for _, r := range value {
		switch {
		case r == ':' || r == '/':
			return fmt.Errorf("invalid domain suffix %q: ports and paths are not allowed", value)
		case unicode.IsSpace(r) || unicode.IsControl(r):
			return fmt.Errorf("invalid domain suffix %q: contains whitespace", value)
		}
	}
	return nil
}

// ValidateNetworkPrefix validates one private-network prefix.
func ValidateNetworkPrefix(value string) error {
	if value == "" {
		return fmt.Errorf("network prefix cannot be empty")
	}
	for _, r := range value {
		if r != '.' && (r < '0' || r > '9') {
			return fmt.Errorf("invalid network prefix %q: only digits and dots are allowed", value)
		}
	}
	return nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
