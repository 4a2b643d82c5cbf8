package models

// RoleType classifies roster members.
type RoleType string

const (
	RoleStudent RoleType = "student"
	RoleStaff   RoleType = "staff"
)

// Person is one roster member. Name is the cache key: unique, case-preserving,
// matched case-insensitively as a substring on lookup.
type Person struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Role     RoleType `json:"roleType"`
}

// Roster is an ordered, name-deduplicated set of people. First occurrence
// wins; insertion order is preserved so output is deterministic regardless of
// map iteration order.
type Roster struct {
	order  []string
	byName map[string]Person
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{byName: make(map[string]Person)}
}

// Add records a person unless the name was already seen.
func (r *Roster) Add(p Person) {
	if _, ok := r.byName[p.Name]; ok {
		return
	}
	r.byName[p.Name] = p
	r.order = append(r.order, p.Name)
}

// Get looks up a person by exact name.
func (r *Roster) Get(name string) (Person, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns roster names in insertion order.
func (r *Roster) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// People returns roster members in insertion order.
func (r *Roster) People() []Person {
	out := make([]Person, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len reports the number of distinct people.
func (r *Roster) Len() int {
	return len(r.order)
}
