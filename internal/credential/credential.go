// Package credential builds, signs and verifies W3C Verifiable Credentials
// encoded as ES256K JWTs.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// ContextV1 is the base JSON-LD context of every issued credential.
	ContextV1 = "https://www.w3.org/2018/credentials/v1"
	// TypeVerifiableCredential is the base credential type.
	TypeVerifiableCredential = "VerifiableCredential"
)

// Credential is an unsigned Verifiable Credential.
//
// JSON form follows the VC data model: a single subject is written as an
// object, several as an array; issuer may be read from a string or an
// object with an id.
type Credential struct {
	Context          []string
	ID               string
	Type             []string
	Issuer           string
	IssuanceDate     *time.Time
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	ExpirationDate   *time.Time
	Subjects         []Subject
	CredentialStatus *Status
}

// Subject is one credentialSubject: an id plus arbitrary claims, flattened
// into a single JSON object.
type Subject struct {
	ID     string
	Claims map[string]any
}

// Status is a StatusList credentialStatus entry.
type Status struct {
	ID                   string      `json:"id,omitempty"`
	Type                 string      `json:"type"`
	StatusPurpose        string      `json:"statusPurpose,omitempty"`
	StatusListIndex      StatusIndex `json:"statusListIndex"`
	StatusListCredential string      `json:"statusListCredential"`
}

// StatusIndex is a status list position. It is written as a string and read
// from either a string or a number.
type StatusIndex int

func (i StatusIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(i)))
}

func (i *StatusIndex) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*i = StatusIndex(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("statusListIndex: %w", err)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("statusListIndex: %w", err)
	}
	*i = StatusIndex(n)
	return nil
}

func (s Subject) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Claims)+1)
	for k, v := range s.Claims {
		m[k] = v
	}
	if s.ID != "" {
		m["id"] = s.ID
	}
	return json.Marshal(m)
}

func (s *Subject) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if id, ok := m["id"].(string); ok {
		s.ID = id
	}
	delete(m, "id")
	s.Claims = m
	return nil
}

type credentialJSON struct {
	Context           []string        `json:"@context"`
	ID                string          `json:"id,omitempty"`
	Type              []string        `json:"type"`
	Issuer            json.RawMessage `json:"issuer"`
	IssuanceDate      *time.Time      `json:"issuanceDate,omitempty"`
	ValidFrom         *time.Time      `json:"validFrom,omitempty"`
	ValidUntil        *time.Time      `json:"validUntil,omitempty"`
	ExpirationDate    *time.Time      `json:"expirationDate,omitempty"`
	CredentialSubject json.RawMessage `json:"credentialSubject"`
	CredentialStatus  *Status         `json:"credentialStatus,omitempty"`
}

func (c Credential) MarshalJSON() ([]byte, error) {
	issuer, err := json.Marshal(c.Issuer)
	if err != nil {
		return nil, err
	}

	var subject []byte
	switch len(c.Subjects) {
	case 0:
		return nil, errors.New("credential has no subject")
	case 1:
		subject, err = json.Marshal(c.Subjects[0])
	default:
		subject, err = json.Marshal(c.Subjects)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(credentialJSON{
		Context:           c.Context,
		ID:                c.ID,
		Type:              c.Type,
		Issuer:            issuer,
		IssuanceDate:      utc(c.IssuanceDate),
		ValidFrom:         utc(c.ValidFrom),
		ValidUntil:        utc(c.ValidUntil),
		ExpirationDate:    utc(c.ExpirationDate),
		CredentialSubject: subject,
		CredentialStatus:  c.CredentialStatus,
	})
}

func (c *Credential) UnmarshalJSON(b []byte) error {
	var raw credentialJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	issuer, err := decodeIssuer(raw.Issuer)
	if err != nil {
		return err
	}
	subjects, err := decodeSubjects(raw.CredentialSubject)
	if err != nil {
		return err
	}

	*c = Credential{
		Context:          raw.Context,
		ID:               raw.ID,
		Type:             raw.Type,
		Issuer:           issuer,
		IssuanceDate:     raw.IssuanceDate,
		ValidFrom:        raw.ValidFrom,
		ValidUntil:       raw.ValidUntil,
		ExpirationDate:   raw.ExpirationDate,
		Subjects:         subjects,
		CredentialStatus: raw.CredentialStatus,
	}
	return nil
}

func decodeIssuer(b json.RawMessage) (string, error) {
	if len(b) == 0 || string(b) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return "", fmt.Errorf("issuer: %w", err)
	}
	return obj.ID, nil
}

func decodeSubjects(b json.RawMessage) ([]Subject, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	if b[0] == '[' {
		var subjects []Subject
		if err := json.Unmarshal(b, &subjects); err != nil {
			return nil, fmt.Errorf("credentialSubject: %w", err)
		}
		return subjects, nil
	}
	var s Subject
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("credentialSubject: %w", err)
	}
	return []Subject{s}, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
