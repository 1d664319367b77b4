package quorum

import (
	"errors"
	"math/big"
	"sort"
)

var (
	ErrNotValidator  = errors.New("quorum: not an active validator")
	ErrDuplicateVote = errors.New("quorum: duplicate vote")
)

// Status marks whether a validator currently participates in signing and
// voting.
type Status uint8

const (
	Inactive Status = iota
	Active
)

// Validator is one member of the configured validator set.
type Validator struct {
	Address [20]byte
	Status  Status
	Deposit *big.Int
}

// Set is the injected validator configuration consulted by the registries,
// the ledger and the bridge. It is deliberately a plain value passed to every
// component at construction; there is no package-level shared set.
type Set struct {
	members map[[20]byte]*Validator
	order   [][20]byte
}

// NewSet builds a set in which every listed address starts out active.
func NewSet(addrs [][20]byte) *Set {
	s := &Set{members: make(map[[20]byte]*Validator, len(addrs))}
	for _, addr := range addrs {
		if _, ok := s.members[addr]; ok {
			continue
		}
		s.members[addr] = &Validator{Address: addr, Status: Active, Deposit: big.NewInt(0)}
		s.order = append(s.order, addr)
	}
	return s
}

// SetStatus activates or deactivates a member, adding it when unknown.
func (s *Set) SetStatus(addr [20]byte, status Status) {
	member, ok := s.members[addr]
	if !ok {
		member = &Validator{Address: addr, Deposit: big.NewInt(0)}
		s.members[addr] = member
		s.order = append(s.order, addr)
	}
	member.Status = status
}

// SetDeposit records the stake backing a validator.
func (s *Set) SetDeposit(addr [20]byte, deposit *big.Int) {
	member, ok := s.members[addr]
	if !ok {
		return
	}
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	member.Deposit = new(big.Int).Set(deposit)
}

// IsActive reports whether addr is an active validator.
func (s *Set) IsActive(addr [20]byte) bool {
	member, ok := s.members[addr]
	return ok && member.Status == Active
}

// ActiveCount returns the number of active validators.
func (s *Set) ActiveCount() int {
	count := 0
	for _, member := range s.members {
		if member.Status == Active {
			count++
		}
	}
	return count
}

// Quorum is the simple majority of the currently active validators.
func (s *Set) Quorum() int {
	return s.ActiveCount()/2 + 1
}

// Active returns the active validator addresses in insertion order.
func (s *Set) Active() [][20]byte {
	active := make([][20]byte, 0, len(s.order))
	for _, addr := range s.order {
		if s.members[addr].Status == Active {
			active = append(active, addr)
		}
	}
	return active
}

// Tally is a duplicate-rejecting vote set. It is stored inside the voted
// record (link request, bridge withdrawal) so votes survive restarts and can
// arrive in any order.
type Tally struct {
	Voters [][20]byte
}

// Has reports whether addr already voted.
func (t *Tally) Has(addr [20]byte) bool {
	for _, voter := range t.Voters {
		if voter == addr {
			return true
		}
	}
	return false
}

// Add records a vote, rejecting duplicates so a single validator can never
// be counted twice.
func (t *Tally) Add(addr [20]byte) error {
	if t.Has(addr) {
		return ErrDuplicateVote
	}
	t.Voters = append(t.Voters, addr)
	return nil
}

// Count returns the number of distinct votes recorded.
func (t *Tally) Count() int {
	return len(t.Voters)
}

// Sorted returns the voters in byte order, for deterministic event payloads.
func (t *Tally) Sorted() [][20]byte {
	out := make([][20]byte, len(t.Voters))
	copy(out, t.Voters)
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < len(out[i]); k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}
