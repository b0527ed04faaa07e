package scrub

import (
	"fmt"
	"strings"
)

// Identity is a placeholder user.
type Identity struct {
	FirstName string
	LastName  string
	Email     string
}

// DisplayName returns "First Last".
func (i Identity) DisplayName() string { return i.FirstName + " " + i.LastName }

var firstNames = []string{
	"Avery", "Blake", "Casey", "Dana", "Emery", "Finley", "Gray", "Harper",
	"Indy", "Jordan", "Kai", "Logan", "Morgan", "Noel", "Oakley", "Parker",
	"Quinn", "Riley", "Sage", "Taylor", "Umber", "Vale", "Wren", "Xen", "Yael",
}

var lastNames = []string{
	"Adams", "Baker", "Carter", "Dalton", "Ellis", "Foster", "Garcia", "Hayes",
	"Irwin", "Jensen", "Keller", "Lopez", "Mason", "Nolan", "Owens", "Patel",
	"Quincy", "Reyes", "Silva", "Turner", "Upton", "Vance", "Walsh", "Xu",
	"Young", "Zimmer", "Abbott", "Brooks", "Chen", "Dunn", "Evans", "Fisher",
	"Grant", "Hughes", "Ito", "James", "Kim", "Lane", "Moore", "Novak",
}

// Pool is the bundled set of placeholder identities.
var Pool = buildPool()

func buildPool() []Identity {
	pool := make([]Identity, 0, len(firstNames)*len(lastNames))
	for _, last := range lastNames {
		for _, first := range firstNames {
			pool = append(pool, Identity{
				FirstName: first,
				LastName:  last,
				Email:     fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), strings.ToLower(last)),
			})
		}
	}
	return pool
}

// IdentityFor returns the placeholder for a user ID.
func IdentityFor(userID int64) Identity {
	n := userID % int64(len(Pool))
	if n < 0 {
		n = -n
	}
	return Pool[n]
}
