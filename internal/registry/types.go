package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Bytes is an opaque byte string. It travels as a JSON string so codes,
// names and hashes stay readable on the wire.
type Bytes []byte

func (b Bytes) String() string { return string(b) }

// Equal reports byte-exact equality.
func (b Bytes) Equal(other []byte) bool { return bytes.Equal(b, other) }

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(b))
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = Bytes(s)
	return nil
}

func clone(b []byte) Bytes {
	if b == nil {
		return nil
	}
	out := make(Bytes, len(b))
	copy(out, b)
	return out
}

// Organization is a registered entity. Status gates its ability to sponsor claims.
type Organization struct {
	Code   Bytes `json:"code"`
	Name   Bytes `json:"name"`
	Status bool  `json:"status"`
}

func (o Organization) clone() Organization {
	return Organization{Code: clone(o.Code), Name: clone(o.Name), Status: o.Status}
}

// AuthDetail is the full record of a claim, keyed by the same hash as its AuthRight.
type AuthDetail struct {
	Hash        Bytes  `json:"hash"`
	AccountID   string `json:"account_id"`
	BlockNumber uint64 `json:"block_number"`
	Description Bytes  `json:"description"`
	OrgCode     Bytes  `json:"org_code"`
}

func (d AuthDetail) clone() AuthDetail {
	return AuthDetail{
		Hash:        clone(d.Hash),
		AccountID:   d.AccountID,
		BlockNumber: d.BlockNumber,
		Description: clone(d.Description),
		OrgCode:     clone(d.OrgCode),
	}
}

// EventKind names the notification emitted by a successful operation.
type EventKind string

const (
	EventOrganizationRegistered      EventKind = "OrganizationRegistered"
	EventOrganizationApprovalChanged EventKind = "OrganizationApprovalChanged"
	EventAuthRightClaimed            EventKind = "AuthRightClaimed"
)

// Event carries the acting account plus the key parameters of the operation.
// Fields not relevant to Kind are left empty.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Account string    `json:"account"`
	Block   uint64    `json:"block"`
	Code    Bytes     `json:"code,omitempty"`
	Name    Bytes     `json:"name,omitempty"`
	Status  bool      `json:"status"`
	Hash    Bytes     `json:"hash,omitempty"`
	At      time.Time `json:"at"`
}

var (
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationNotApproved   = errors.New("organization not approved")
	ErrClaimAlreadyExists        = errors.New("claim already exists")

	// ErrClaimNotFound is returned by the read-side queries only.
	ErrClaimNotFound = errors.New("claim not found")
	// ErrReadOnly rejects inserts made inside Store.View.
	ErrReadOnly = errors.New("registry: read-only transaction")
)
