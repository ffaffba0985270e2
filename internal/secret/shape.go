package secret

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/models"
)

// Shape is the plaintext layout of a secret. Exactly one shape applies per
// resource type.
type Shape int

const (
	// PasswordOnly secrets are the raw password.
	PasswordOnly Shape = iota + 1
	// PasswordAndDescription secrets are a JSON object with password and description.
	PasswordAndDescription
	// PasswordDescriptionTOTP secrets add TOTP parameters to PasswordAndDescription.
	PasswordDescriptionTOTP
	// TOTPOnly secrets are a JSON object with TOTP parameters only.
	TOTPOnly
)

// ShapeFor returns the shape of a resource type, or ErrUnsupportedType.
func ShapeFor(rt models.ResourceType) (Shape, error) {
	switch rt.Slug {
	case models.PasswordString:
		return PasswordOnly, nil
	case models.PasswordAndDescription:
		return PasswordAndDescription, nil
	case models.PasswordDescriptionTOTP:
		return PasswordDescriptionTOTP, nil
	case models.TOTP:
		return TOTPOnly, nil
	default:
		return 0, fmt.Errorf("%w: %q", kerrors.ErrUnsupportedType, rt.Slug)
	}
}

func (s Shape) String() string {
	switch s {
	case PasswordOnly:
		return string(models.PasswordString)
	case PasswordAndDescription:
		return string(models.PasswordAndDescription)
	case PasswordDescriptionTOTP:
		return string(models.PasswordDescriptionTOTP)
	case TOTPOnly:
		return string(models.TOTP)
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

type fields struct {
	password    bool
	description bool
	totp        bool
}

func (s Shape) fields() fields {
	switch s {
	case PasswordOnly:
		return fields{password: true}
	case PasswordAndDescription:
		return fields{password: true, description: true}
	case PasswordDescriptionTOTP:
		return fields{password: true, description: true, totp: true}
	case TOTPOnly:
		return fields{totp: true}
	default:
		panic(fmt.Sprintf("secret: unknown shape %d", int(s)))
	}
}

// Decode parses a decrypted plaintext. Only fields the shape declares are
// set; the others stay nil even when present in the payload.
func (s Shape) Decode(plaintext []byte) (*models.PlaintextSecret, error) {
	if s == PasswordOnly {
		password := string(plaintext)
		return &models.PlaintextSecret{Password: &password}, nil
	}

	if !gjson.ValidBytes(plaintext) {
		return nil, fmt.Errorf("%w: %s payload is not valid JSON", kerrors.ErrMalformedPayload, s)
	}
	doc := gjson.ParseBytes(plaintext)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: %s payload is not a JSON object", kerrors.ErrMalformedPayload, s)
	}
	if err := uniqueKeys(doc); err != nil {
		return nil, err
	}

	declared := s.fields()
	secret := &models.PlaintextSecret{}

	if declared.password {
		password, err := stringField(doc, "password", true)
		if err != nil {
			return nil, err
		}
		secret.Password = &password
	}
	if declared.description {
		// Descriptions are optional in the payload; an absent one is empty.
		description, err := stringField(doc, "description", false)
		if err != nil {
			return nil, err
		}
		secret.Description = &description
	}
	if declared.totp {
		totp, err := decodeTOTP(doc.Get("totp"))
		if err != nil {
			return nil, err
		}
		secret.TOTP = totp
	}
	return secret, nil
}

func decodeTOTP(v gjson.Result) (*models.TOTPParams, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("%w: totp must be an object", kerrors.ErrMalformedPayload)
	}
	if err := uniqueKeys(v); err != nil {
		return nil, err
	}
	algorithm, err := stringField(v, "algorithm", true)
	if err != nil {
		return nil, err
	}
	secretKey, err := stringField(v, "secret_key", true)
	if err != nil {
		return nil, err
	}
	digits, err := intField(v, "digits")
	if err != nil {
		return nil, err
	}
	period, err := intField(v, "period")
	if err != nil {
		return nil, err
	}
	return &models.TOTPParams{
		Algorithm: algorithm,
		SecretKey: secretKey,
		Digits:    digits,
		Period:    period,
	}, nil
}

func stringField(obj gjson.Result, name string, required bool) (string, error) {
	v := obj.Get(name)
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		if required {
			return "", fmt.Errorf("%w: missing %s", kerrors.ErrMalformedPayload, name)
		}
		return "", nil
	case v.Type != gjson.String:
		return "", fmt.Errorf("%w: %s must be a string", kerrors.ErrMalformedPayload, name)
	}
	return v.Str, nil
}

func intField(obj gjson.Result, name string) (int, error) {
	v := obj.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return 0, fmt.Errorf("%w: missing totp %s", kerrors.ErrMalformedPayload, name)
	}
	if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) {
		return 0, fmt.Errorf("%w: totp %s must be an integer", kerrors.ErrMalformedPayload, name)
	}
	if v.Num < 0 || v.Num > math.MaxInt32 {
		return 0, fmt.Errorf("%w: totp %s out of range", kerrors.ErrMalformedPayload, name)
	}
	return int(v.Num), nil
}

// uniqueKeys rejects objects naming a member twice. gjson resolves the first
// occurrence while other JSON decoders keep the last.
func uniqueKeys(obj gjson.Result) error {
	seen := make(map[string]struct{})
	var dup string
	obj.ForEach(func(key, _ gjson.Result) bool {
		if _, ok := seen[key.Str]; ok {
			dup = key.Str
			return false
		}
		seen[key.Str] = struct{}{}
		return true
	})
	if dup != "" {
		return fmt.Errorf("%w: duplicate key %q", kerrors.ErrMalformedPayload, dup)
	}
	return nil
}
