package auth

// ACL grants a set of roles to one issuer. Entries are loaded from
// configuration at startup and never mutated afterwards.
type ACL struct {
	ClientID string   `json:"client_id"`
	Roles    []string `json:"roles"`
}

// RoleSet indexes ACL entries by issuer for constant-time lookup.
// Multiple entries for the same client id are merged into the union
// of their role sets.
type RoleSet struct {
	byIssuer map[string]map[string]struct{}
}

func NewRoleSet(entries []ACL) *RoleSet {
	byIssuer := make(map[string]map[string]struct{}, len(entries))
	for _, entry := range entries {
		roles, ok := byIssuer[entry.ClientID]
		if !ok {
			roles = make(map[string]struct{}, len(entry.Roles))
			byIssuer[entry.ClientID] = roles
		}
		for _, role := range entry.Roles {
			roles[role] = struct{}{}
		}
	}
	return &RoleSet{byIssuer: byIssuer}
}

// Authorize returns the agent identity for the claims, or
// ErrNotAuthorized unless some entry has the claims' issuer as client
// id and the claims' role in its role set.
func (s *RoleSet) Authorize(claims Claims) (*Agent, error) {
	roles, ok := s.byIssuer[claims.Issuer]
	if !ok {
		return nil, ErrNotAuthorized
	}
	if _, ok := roles[claims.Role]; !ok {
		return nil, ErrNotAuthorized
	}
	return &Agent{Name: claims.Issuer, Role: claims.Role}, nil
}
