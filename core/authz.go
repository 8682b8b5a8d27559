package core

// Decision is the outcome of a capability check: Allowed or Denied(reason).
// Every mutating service operation runs one before touching the store.
type Decision struct {
	Allowed bool
	Reason  string
}

func Permit() Decision {
	return Decision{Allowed: true}
}

func Refuse(reason string) Decision {
	return Decision{Reason: reason}
}

// Err returns nil when allowed, a *PermissionError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return NewPermissionError(d.Reason)
}
