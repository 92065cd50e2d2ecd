package auth

// Scopes understood by the activity API.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
)

// impliedBy lists the scopes that also grant a scope.
var impliedBy = map[string][]string{
	ScopeActivitiesRead: {ScopeActivitiesWrite},
}

// Allows reports whether the claims grant scope directly or through a broader scope.
func (c *Claims) Allows(scope string) bool {
	if c.HasScope(scope) {
		return true
	}
	for _, broader := range impliedBy[scope] {
		if c.HasScope(broader) {
			return true
		}
	}
	return false
}
