package rebalance

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// RestrictionType names the stored form of a security's account restriction.
type RestrictionType string

const (
	RestrictionUnrestricted RestrictionType = "unrestricted"
	RestrictionRestrictedTo RestrictionType = "restricted_to_accounts"
	RestrictionPrioritized  RestrictionType = "prioritized_accounts"
)

// Restriction decides which accounts may buy a security and how they rank.
// Implementations are Unrestricted, RestrictedTo and Prioritized.
type Restriction interface {
	Type() RestrictionType
	// Allows reports whether the security may be bought in the account.
	Allows(accountID string) bool
	// Rank orders allowed accounts; lower ranks are preferred.
	Rank(accountID string) int
}

type accountSet map[string]struct{}

func newAccountSet(ids []string) accountSet {
	s := make(accountSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s accountSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s accountSet) sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unrestricted allows every account with no ranking bias.
type Unrestricted struct{}

func (Unrestricted) Type() RestrictionType { return RestrictionUnrestricted }
func (Unrestricted) Allows(string) bool    { return true }
func (Unrestricted) Rank(string) int       { return 0 }

// RestrictedTo allows only the listed accounts. An empty set allows none.
type RestrictedTo struct {
	allowed accountSet
}

// NewRestrictedTo builds a RestrictedTo over the given account ids.
func NewRestrictedTo(accountIDs ...string) RestrictedTo {
	return RestrictedTo{allowed: newAccountSet(accountIDs)}
}

func (r RestrictedTo) Type() RestrictionType        { return RestrictionRestrictedTo }
func (r RestrictedTo) Allows(accountID string) bool { return r.allowed.has(accountID) }
func (r RestrictedTo) Rank(string) int              { return 0 }

// Prioritized allows every account but ranks priority_1 members ahead of
// priority_2, then priority_3, then unlisted accounts.
type Prioritized struct {
	tiers [3]accountSet
}

// NewPrioritized builds a Prioritized from up to three tiers, highest first.
func NewPrioritized(tiers ...[]string) Prioritized {
	var p Prioritized
	for i := range p.tiers {
		if i < len(tiers) {
			p.tiers[i] = newAccountSet(tiers[i])
		} else {
			p.tiers[i] = accountSet{}
		}
	}
	return p
}

func (p Prioritized) Type() RestrictionType { return RestrictionPrioritized }
func (p Prioritized) Allows(string) bool    { return true }

func (p Prioritized) Rank(accountID string) int {
	for i, tier := range p.tiers {
		if tier.has(accountID) {
			return i
		}
	}
	return len(p.tiers)
}

// AccountConfig is the JSON payload stored next to a restriction type.
type AccountConfig struct {
	Allowed   []string `json:"allowed,omitempty"`
	Priority1 []string `json:"priority_1,omitempty"`
	Priority2 []string `json:"priority_2,omitempty"`
	Priority3 []string `json:"priority_3,omitempty"`
}

// ValidRestrictionType reports whether s names a known restriction.
func ValidRestrictionType(s string) bool {
	switch RestrictionType(s) {
	case RestrictionUnrestricted, RestrictionRestrictedTo, RestrictionPrioritized:
		return true
	}
	return false
}

// NewRestriction builds a Restriction from a type and its account config.
// An empty type means unrestricted.
func NewRestriction(kind string, cfg AccountConfig) (Restriction, error) {
	switch RestrictionType(kind) {
	case "", RestrictionUnrestricted:
		return Unrestricted{}, nil
	case RestrictionRestrictedTo:
		return NewRestrictedTo(cfg.Allowed...), nil
	case RestrictionPrioritized:
		return NewPrioritized(cfg.Priority1, cfg.Priority2, cfg.Priority3), nil
	}
	return nil, fmt.Errorf("unknown restriction type %q", kind)
}

// ParseRestriction decodes a stored restriction. raw may be empty or null.
func ParseRestriction(kind string, raw []byte) (Restriction, error) {
	var cfg AccountConfig
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decoding account config: %w", err)
		}
	}
	return NewRestriction(kind, cfg)
}

// ConfigOf returns the storable config for r, nil for unrestricted.
func ConfigOf(r Restriction) *AccountConfig {
	switch v := r.(type) {
	case RestrictedTo:
		return &AccountConfig{Allowed: v.allowed.sorted()}
	case Prioritized:
		return &AccountConfig{
			Priority1: v.tiers[0].sorted(),
			Priority2: v.tiers[1].sorted(),
			Priority3: v.tiers[2].sorted(),
		}
	default:
		return nil
	}
}

// EligibleAccounts returns the accounts where the restriction allows the
// security, ordered by the restriction's rank. Input order breaks ties.
func EligibleAccounts(r Restriction, accounts []Account) []Account {
	if r == nil {
		r = Unrestricted{}
	}
	out := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if r.Allows(acc.ID) {
			out = append(out, acc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.Rank(out[i].ID) < r.Rank(out[j].ID)
	})
	return out
}

// Permits reports whether the placement rules allow the account.
func (p Placement) Permits(acc Account) bool {
	if p.ExcludeRegistered && acc.IsRegistered {
		return false
	}
	if p.ExcludeNonRegistered && !acc.IsRegistered {
		return false
	}
	for _, t := range p.AvoidAccountTypes {
		if strings.EqualFold(strings.TrimSpace(t), acc.Type) {
			return false
		}
	}
	return true
}

// preference returns 0 for the explicitly preferred account, 1 for an
// account of the preferred type, and 2 otherwise.
func (p Placement) preference(acc Account) int {
	if p.PreferredAccountID != "" && acc.ID == p.PreferredAccountID {
		return 0
	}
	if p.PreferredAccountType != "" && strings.EqualFold(acc.Type, p.PreferredAccountType) {
		return 1
	}
	return 2
}

// ClassEligible filters accounts by the asset class's placement rules.
func ClassEligible(accounts []Account, p Placement) []Account {
	out := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if p.Permits(acc) {
			out = append(out, acc)
		}
	}
	return out
}

// accountScore ranks a funding account for an underweight asset class.
type accountScore struct {
	preference  int
	hasExisting bool
	sellable    decimal.Decimal
	registered  bool
	value       decimal.Decimal
	priority    int
}

func scoreAccount(acc Account, assetClassID string, overweight map[string]decimal.Decimal, rates RateTable, base string, p Placement) accountScore {
	s := accountScore{
		preference: p.preference(acc),
		registered: acc.IsRegistered,
		priority:   acc.Priority,
		sellable:   decimal.Zero,
		value:      AccountTotal(acc, rates, base),
	}
	for _, h := range acc.Holdings {
		if h.AssetClassID == assetClassID && h.Quantity.IsPositive() {
			s.hasExisting = true
		}
		if remaining, ok := overweight[h.AssetClassID]; ok && remaining.IsPositive() {
			s.sellable = s.sellable.Add(rates.Convert(h.MarketValue(), h.Currency, base))
		}
	}
	return s
}

// better reports whether a should be chosen over b.
func (a accountScore) better(b accountScore) bool {
	if a.preference != b.preference {
		return a.preference < b.preference
	}
	if a.hasExisting != b.hasExisting {
		return a.hasExisting
	}
	if !a.sellable.Equal(b.sellable) {
		return a.sellable.GreaterThan(b.sellable)
	}
	if a.registered != b.registered {
		return a.registered
	}
	if !a.value.Equal(b.value) {
		return a.value.GreaterThan(b.value)
	}
	return a.priority > b.priority
}

// RankAccounts orders candidate funding accounts for an underweight asset
// class, best first: preferred account, then accounts already holding the
// class, then largest sellable overweight value, then registered accounts,
// then larger accounts counting cash, then higher manual priority.
func RankAccounts(accounts []Account, assetClassID string, overweight map[string]decimal.Decimal, rates RateTable, base string, p Placement) []Account {
	type scored struct {
		acc   Account
		score accountScore
	}
	list := make([]scored, len(accounts))
	for i, acc := range accounts {
		list[i] = scored{acc: acc, score: scoreAccount(acc, assetClassID, overweight, rates, base, p)}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].score.better(list[j].score)
	})
	out := make([]Account, len(list))
	for i, s := range list {
		out[i] = s.acc
	}
	return out
}
