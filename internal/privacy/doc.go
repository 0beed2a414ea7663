// Package privacy redacts personal identifiers and credentials from text the
// agent wants to persist.
//
// Memories written through governance pass through a Redactor before they
// are stored, so an approved memory can never carry an email address, phone
// number or leaked token. Rules are regular expressions with optional keyword
// gates; deployments can add or override rules with a TOML file.
package privacy
