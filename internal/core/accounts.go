package core

import (
	"sort"
	"strings"
)

// AccountResolver maps an account to the key used in Amounts and Totals.
// Amount maps are joined to accounts by name; renaming an account leaves
// older entries keyed by the previous name.
type AccountResolver interface {
	Key(a Account) string
}

// ByName joins accounts to amount maps on the account name.
type ByName struct{}

func (ByName) Key(a Account) string { return a.Name }

// SortAccounts orders accounts by their Order field, keeping ties stable.
func SortAccounts(accounts []Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Order < accounts[j].Order
	})
}

// FindAccountByName looks up an account ignoring case and surrounding
// whitespace.
func FindAccountByName(accounts []Account, name string) (Account, bool) {
	name = strings.TrimSpace(name)
	for _, a := range accounts {
		if strings.EqualFold(strings.TrimSpace(a.Name), name) {
			return a, true
		}
	}
	return Account{}, false
}
