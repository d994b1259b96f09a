package auth

// KeyLookup is the slice of the key store the authorizer depends on.
type KeyLookup interface {
	// Lookup resolves a presented secret to its key id.
	Lookup(candidate string) (string, bool)

	// Active reports whether a key id is still valid.
	Active(id string) bool
}

// Result is an authorization decision. Denial is a normal outcome, not an
// error; there is nothing to retry.
type Result struct {
	Authorized bool
	KeyID      string
}

// Denied is the zero decision.
var Denied = Result{}

// Authorizer validates presented API keys against the key store. It is
// stateless and safe for concurrent use.
type Authorizer struct {
	keys KeyLookup
}

func New(keys KeyLookup) *Authorizer {
	return &Authorizer{keys: keys}
}

// Authorize checks an opaque candidate key. An empty or unknown key yields
// Denied.
func (a *Authorizer) Authorize(candidate string) Result {
	if candidate == "" {
		return Denied
	}
	id, ok := a.keys.Lookup(candidate)
	if !ok {
		return Denied
	}
	return Result{Authorized: true, KeyID: id}
}

// AuthorizeID checks whether a previously resolved key id is still valid.
// Used when an operation carries the key id rather than the secret.
func (a *Authorizer) AuthorizeID(id string) Result {
	if id == "" || !a.keys.Active(id) {
		return Denied
	}
	return Result{Authorized: true, KeyID: id}
}
