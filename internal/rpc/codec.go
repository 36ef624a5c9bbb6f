package rpc

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"authright.org/internal/registry"
)

// Byte strings travel as UTF-8 string values. Block heights travel as
// numbers and are exact up to 2^53.

func field(s *structpb.Struct, name string) *structpb.Value {
	return s.GetFields()[name]
}

// String returns the string value of name, "" when absent.
func String(s *structpb.Struct, name string) string {
	return field(s, name).GetStringValue()
}

// Bool returns the bool value of name and whether it was present as a bool.
func Bool(s *structpb.Struct, name string) (bool, bool) {
	v := field(s, name)
	if v == nil {
		return false, false
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, false
	}
	return b.BoolValue, true
}

func uintField(s *structpb.Struct, name string) uint64 {
	n := field(s, name).GetNumberValue()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// EventStruct encodes evt.
func EventStruct(evt registry.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":      evt.ID,
		"kind":    string(evt.Kind),
		"account": evt.Account,
		"block":   evt.Block,
		"code":    evt.Code.String(),
		"name":    evt.Name.String(),
		"status":  evt.Status,
		"hash":    evt.Hash.String(),
		"at":      evt.At.UTC().Format(time.RFC3339Nano),
	})
}

// EventFromStruct decodes an event produced by EventStruct.
func EventFromStruct(s *structpb.Struct) (registry.Event, error) {
	evt := registry.Event{
		ID:      String(s, "id"),
		Kind:    registry.EventKind(String(s, "kind")),
		Account: String(s, "account"),
		Block:   uintField(s, "block"),
		Code:    optionalBytes(String(s, "code")),
		Name:    optionalBytes(String(s, "name")),
		Hash:    optionalBytes(String(s, "hash")),
	}
	evt.Status, _ = Bool(s, "status")
	if at := String(s, "at"); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return registry.Event{}, fmt.Errorf("decode event time: %w", err)
		}
		evt.At = t
	}
	return evt, nil
}

// OrganizationStruct encodes org.
func OrganizationStruct(org registry.Organization) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"code":   org.Code.String(),
		"name":   org.Name.String(),
		"status": org.Status,
	})
}

// OrganizationFromStruct decodes an organization produced by OrganizationStruct.
func OrganizationFromStruct(s *structpb.Struct) registry.Organization {
	status, _ := Bool(s, "status")
	return registry.Organization{
		Code:   registry.Bytes(String(s, "code")),
		Name:   registry.Bytes(String(s, "name")),
		Status: status,
	}
}

func detailMap(d registry.AuthDetail) map[string]any {
	return map[string]any{
		"hash":         d.Hash.String(),
		"account_id":   d.AccountID,
		"block_number": d.BlockNumber,
		"description":  d.Description.String(),
		"org_code":     d.OrgCode.String(),
	}
}

// ClaimStruct encodes the owner and detail of a claim.
func ClaimStruct(hash []byte, owner string, d registry.AuthDetail) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"hash":   string(hash),
		"owner":  owner,
		"detail": detailMap(d),
	})
}

// ClaimFromStruct decodes a value produced by ClaimStruct.
func ClaimFromStruct(s *structpb.Struct) (string, registry.AuthDetail) {
	d := field(s, "detail").GetStructValue()
	return String(s, "owner"), registry.AuthDetail{
		Hash:        registry.Bytes(String(d, "hash")),
		AccountID:   String(d, "account_id"),
		BlockNumber: uintField(d, "block_number"),
		Description: registry.Bytes(String(d, "description")),
		OrgCode:     registry.Bytes(String(d, "org_code")),
	}
}

func optionalBytes(s string) registry.Bytes {
	if s == "" {
		return nil
	}
	return registry.Bytes(s)
}
