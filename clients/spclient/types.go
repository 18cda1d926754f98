package spclient

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PermissionKind identifies a single SharePoint base permission.
type PermissionKind int

// PermissionEditListItems is SP.PermissionKind.editListItems, the only kind
// the panel checks.
const PermissionEditListItems PermissionKind = 3

// User is the subset of SP.User the panel reads.
type User struct {
	ID        int    `json:"Id"`
	LoginName string `json:"LoginName"`
	Title     string `json:"Title"`
	Email     string `json:"Email"`
}

// BasePermissions is a 64-bit SharePoint permission mask split in two halves.
type BasePermissions struct {
	High uint32
	Low  uint32
}

// Has reports whether the mask includes the single-bit permission perm
// (1 to 64).
func (p BasePermissions) Has(perm PermissionKind) bool {
	switch {
	case perm < 1:
		return false
	case perm <= 32:
		return p.Low&(1<<uint(perm-1)) != 0
	case perm <= 64:
		return p.High&(1<<uint(perm-33)) != 0
	default:
		return false
	}
}

// UnmarshalJSON accepts High and Low as JSON strings or numbers; SharePoint
// sends strings.
func (p *BasePermissions) UnmarshalJSON(data []byte) error {
	var raw struct {
		High json.RawMessage `json:"High"`
		Low  json.RawMessage `json:"Low"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	high, err := parseMaskHalf(raw.High)
	if err != nil {
		return fmt.Errorf("parsing High: %w", err)
	}
	low, err := parseMaskHalf(raw.Low)
	if err != nil {
		return fmt.Errorf("parsing Low: %w", err)
	}
	p.High = high
	p.Low = low
	return nil
}

func parseMaskHalf(raw json.RawMessage) (uint32, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// listItemsResponse is the nometadata shape of a list items query.
type listItemsResponse struct {
	Value []map[string]json.RawMessage `json:"value"`
}
