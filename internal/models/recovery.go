package models

import "time"

// RecoveryRequestStatus is the lifecycle state of an account recovery request.
type RecoveryRequestStatus string

const (
	RecoveryRequestPending   RecoveryRequestStatus = "pending"
	RecoveryRequestApproved  RecoveryRequestStatus = "approved"
	RecoveryRequestRejected  RecoveryRequestStatus = "rejected"
	RecoveryRequestCompleted RecoveryRequestStatus = "completed"
)

// PrivateKeyPasswordDecryptedDataType is the expected type of a decrypted recovery response.
const PrivateKeyPasswordDecryptedDataType = "account-recovery-private-key-password-decrypted-data"

// PrivateKeyPasswordDecryptedDataVersion is the only supported payload version.
const PrivateKeyPasswordDecryptedDataVersion = "v1"

// RecoveryAccount is the temporary account a user holds while an account
// recovery request is being processed.
type RecoveryAccount struct {
	Account
	// AccountRecoveryRequestID is the request this temporary account was created for.
	AccountRecoveryRequestID string `json:"account_recovery_request_id"`
	// AuthenticationToken authorizes fetching the request from the backend.
	AuthenticationToken string `json:"authentication_token"`
	// KnownPublicArmoredKey is the public key the user had before losing access, if still known.
	KnownPublicArmoredKey string `json:"known_public_armored_key,omitempty"`
}

// AccountRecoveryRequest is an organization-mediated request to recover a user's private key.
type AccountRecoveryRequest struct {
	// ID is the unique identifier of the request.
	ID string `json:"id"`
	// UserID is the user whose key is being recovered.
	UserID string `json:"user_id"`
	// Status is the request lifecycle state.
	Status RecoveryRequestStatus `json:"status"`
	// PrivateKey is the organization-escrowed copy of the user's private key.
	PrivateKey *AccountRecoveryPrivateKey `json:"account_recovery_private_key"`
	// Responses holds the organization answers to the request.
	Responses []AccountRecoveryResponse `json:"account_recovery_responses"`
	// Created is when the request was issued.
	Created time.Time `json:"created"`
}

// AccountRecoveryPrivateKey wraps the user's armored private key in a
// symmetrically encrypted OpenPGP message.
type AccountRecoveryPrivateKey struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// AccountRecoveryResponse is an organization answer to a recovery request.
// Data is an OpenPGP message encrypted for the temporary recovery key.
type AccountRecoveryResponse struct {
	ID        string                `json:"id"`
	RequestID string                `json:"account_recovery_request_id"`
	Status    RecoveryRequestStatus `json:"status"`
	Data      string                `json:"data"`
}

// PrivateKeyPasswordDecryptedData is the decrypted content of a recovery response.
type PrivateKeyPasswordDecryptedData struct {
	Type                  string    `json:"type"`
	Version               string    `json:"version"`
	Domain                string    `json:"domain"`
	PrivateKeyUserID      string    `json:"private_key_user_id"`
	PrivateKeyFingerprint string    `json:"private_key_fingerprint"`
	PrivateKeySecret      string    `json:"private_key_secret"`
	Created               time.Time `json:"created"`
}

// RecoveredPrivateKey is the result of an account recovery: the user's
// original private key protected by a new passphrase, and its public key.
type RecoveredPrivateKey struct {
	UserID            string
	PrivateArmoredKey string
	PublicArmoredKey  string
	Fingerprint       string
}
