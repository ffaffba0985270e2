// Package models defines the core data structures for accounts, resources and secrets.
package models

import "slices"

// Account is the local account of a user whose keys are configured on this client.
type Account struct {
	// UserID is the server-side identifier of the user.
	UserID string `json:"user_id"`
	// Username is the login name of the user.
	Username string `json:"username"`
	// Domain is the organization server the account belongs to.
	Domain string `json:"domain"`
	// UserPublicArmoredKey is the user's armored OpenPGP public key.
	UserPublicArmoredKey string `json:"user_public_armored_key"`
	// UserPrivateArmoredKey is the user's armored, passphrase-protected OpenPGP private key.
	UserPrivateArmoredKey string `json:"user_private_armored_key"`
}

// ResourceTypeSlug identifies the plaintext layout of a resource's secret.
type ResourceTypeSlug string

const (
	// PasswordString carries the password as the raw plaintext.
	PasswordString ResourceTypeSlug = "password-string"
	// PasswordAndDescription carries a JSON object with password and description.
	PasswordAndDescription ResourceTypeSlug = "password-and-description"
	// PasswordDescriptionTOTP carries a JSON object with password, description and totp.
	PasswordDescriptionTOTP ResourceTypeSlug = "password-description-totp"
	// TOTP carries a JSON object with totp only.
	TOTP ResourceTypeSlug = "totp"
)

// SupportedResourceTypeSlugs lists every slug the client knows how to decrypt.
var SupportedResourceTypeSlugs = []ResourceTypeSlug{
	PasswordString,
	PasswordAndDescription,
	PasswordDescriptionTOTP,
	TOTP,
}

// IsSupported reports whether the slug is one of SupportedResourceTypeSlugs.
func (s ResourceTypeSlug) IsSupported() bool {
	return slices.Contains(SupportedResourceTypeSlugs, s)
}

// ResourceType describes which fields a resource's secret carries.
type ResourceType struct {
	// ID is the unique identifier of the resource type.
	ID string `json:"id"`
	// Slug selects the plaintext layout.
	Slug ResourceTypeSlug `json:"slug"`
	// Name is a human readable label.
	Name string `json:"name"`
}

// SecretEnvelope is an encrypted secret as fetched from the backend.
type SecretEnvelope struct {
	// ResourceID is the resource the secret belongs to.
	ResourceID string `json:"resource_id"`
	// ResourceTypeID identifies the resource type of the resource.
	ResourceTypeID string `json:"resource_type_id"`
	// UserID is the user the secret was encrypted for.
	UserID string `json:"user_id"`
	// Data is the armored OpenPGP message.
	Data string `json:"data"`
}

// PlaintextSecret is a decrypted secret. Fields the resource type does not
// declare are nil, which is distinct from an empty value.
type PlaintextSecret struct {
	Password    *string     `json:"password"`
	Description *string     `json:"description"`
	TOTP        *TOTPParams `json:"totp"`
}

// TOTPParams are the parameters of a time-based one-time password.
type TOTPParams struct {
	Algorithm string `json:"algorithm"`
	SecretKey string `json:"secret_key"`
	Digits    int    `json:"digits"`
	Period    int    `json:"period"`
}
