package types

// Actor is whoever performs an engine operation. Lead actors are privileged:
// they edit directly and decide on edit requests.
type Actor struct {
	Name string `json:"name"`
	Lead bool   `json:"is_lead"`
}

// String returns the actor name for audit records.
func (a Actor) String() string {
	if a.Name == "" {
		return "unknown"
	}
	return a.Name
}
