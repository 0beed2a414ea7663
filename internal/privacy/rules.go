package privacy

// Rule categories.
const (
	CategoryPII    = "pii"
	CategorySecret = "secret"
)

// DefaultRules returns the built-in rules for contact details, network
// identifiers, payment data and common credential formats.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "email",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
			Category:    CategoryPII,
		},
		{
			ID:          "phone",
			Description: "Phone number",
			Pattern:     `\+?\d{1,3}[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`,
			Category:    CategoryPII,
		},
		{
			ID:          "ipv4",
			Description: "IPv4 address",
			Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`,
			Category:    CategoryPII,
		},
		{
			ID:          "card-number",
			Description: "Payment card number",
			Pattern:     `\b(?:\d[ \-]?){13,16}\b`,
			Keywords:    []string{"card", "visa", "mastercard", "amex", "cc"},
			Category:    CategoryPII,
		},
		{
			ID:          "street-address",
			Description: "Street address",
			Pattern:     `(?i)\b\d{1,5}\s+(?:[A-Za-z]+\s){1,3}(?:street|st|avenue|ave|road|rd|lane|ln|drive|dr|boulevard|blvd)\b`,
			Category:    CategoryPII,
		},
		{
			ID:          "generic-secret",
			Description: "Password or secret assignment",
			Pattern:     `(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords:    []string{"secret", "password", "passwd", "pwd"},
			Category:    CategorySecret,
		},
		{
			ID:          "api-key",
			Description: "API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey|token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"api", "key", "token"},
			Category:    CategorySecret,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9\-._~+/]{20,}=*`,
			Category:    CategorySecret,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Category:    CategorySecret,
		},
		{
			ID:          "private-key",
			Description: "Private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Category:    CategorySecret,
		},
		{
			ID:          "stream-key",
			Description: "Streaming platform key",
			Pattern:     `live_[0-9]{6,}_[A-Za-z0-9]{20,}`,
			Category:    CategorySecret,
		},
	}
}
