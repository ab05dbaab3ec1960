// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"strings"
)

// Role is one permission bit. A set of roles is a bitwise OR of Role
// values.
type Role uint8

const (
	RoleStudent Role = 1 << iota
	RoleTeacher
	RoleAdmin
)

// allRoles lists every defined role in display order.
var allRoles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

var roleNames = map[Role]string{
	RoleStudent: "student",
	RoleTeacher: "teacher",
	RoleAdmin:   "admin",
}

// Has reports whether every bit in want is present in r.
func (r Role) Has(want Role) bool {
	return want != 0 && r&want == want
}

// Names returns the names of the roles in the set, in display order.
func (r Role) Names() []string {
	var names []string
	for _, role := range allRoles {
		if r&role != 0 {
			names = append(names, roleNames[role])
		}
	}
	return names
}

func (r Role) String() string {
	if r == 0 {
		return "none"
	}
	return strings.Join(r.Names(), "+")
}

// ParseRole parses a single role name.
func ParseRole(name string) (Role, error) {
	for role, roleName := range roleNames {
		if roleName == name {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// ParseRoles parses role names into a role set.
func ParseRoles(names []string) (Role, error) {
	var set Role
	for _, name := range names {
		role, err := ParseRole(strings.TrimSpace(name))
		if err != nil {
			return 0, err
		}
		set |= role
	}
	return set, nil
}
