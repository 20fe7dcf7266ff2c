package documents

import "github.com/google/uuid"

// SelectUpTo returns the reviewer chain obtained by clicking candidate k.
// Every candidate at index <= k is selected and the self entry is always
// included. The self entry is placed at order 0, the rest keep candidate order.
// A negative k selects the self entry alone.
func SelectUpTo(candidates []Candidate, k int) (Chain, error) {
	if len(candidates) == 0 {
		return nil, newWorkflowError(KindEmptySelection, uuid.Nil, "no candidates to select from")
	}
	if k >= len(candidates) {
		k = len(candidates) - 1
	}

	var self *Candidate
	for i := range candidates {
		if candidates[i].IsSelf {
			if self != nil {
				return nil, newWorkflowError(KindInvalidChain, uuid.Nil, "more than one self candidate")
			}
			self = &candidates[i]
		}
	}
	if self == nil {
		return nil, newWorkflowError(KindInvalidChain, uuid.Nil, "candidate list has no self entry")
	}

	chain := Chain{{
		EmployeeID: self.EmployeeID,
		Name:       self.Name,
		Role:       self.Role,
		IsSelf:     true,
	}}
	seen := map[string]struct{}{self.EmployeeID: {}}
	for i := 0; i <= k; i++ {
		c := candidates[i]
		if _, dup := seen[c.EmployeeID]; dup {
			continue
		}
		seen[c.EmployeeID] = struct{}{}
		chain = append(chain, ReviewerChainEntry{
			EmployeeID: c.EmployeeID,
			Name:       c.Name,
			Role:       c.Role,
		})
	}
	for i := range chain {
		chain[i].Order = i
	}
	return chain, nil
}

// DeselectFrom re-derives the selection after un-clicking candidate k, which
// drops k and everything after it.
func DeselectFrom(candidates []Candidate, k int) (Chain, error) {
	return SelectUpTo(candidates, k-1)
}

// IsPrefixClosed reports whether the non-self entries of chain are exactly a
// prefix of the non-self candidates.
func IsPrefixClosed(candidates []Candidate, chain Chain) bool {
	others := chain.Others()
	i := 0
	for _, c := range candidates {
		if c.IsSelf {
			continue
		}
		if i == len(others) {
			return true
		}
		if others[i].EmployeeID != c.EmployeeID {
			return false
		}
		i++
	}
	return i == len(others)
}

// ValidateChain checks a caller supplied chain before it is committed
func ValidateChain(chain Chain) error {
	if len(chain) == 0 {
		return newWorkflowError(KindEmptySelection, uuid.Nil, "no reviewers selected")
	}
	selfCount := 0
	seen := make(map[string]struct{}, len(chain))
	for _, entry := range chain {
		if entry.EmployeeID == "" {
			return newWorkflowError(KindInvalidChain, uuid.Nil, "chain entry without employee id")
		}
		if _, dup := seen[entry.EmployeeID]; dup {
			return newWorkflowError(KindInvalidChain, uuid.Nil, "employee %s appears twice", entry.EmployeeID)
		}
		seen[entry.EmployeeID] = struct{}{}
		if entry.IsSelf {
			selfCount++
		}
	}
	if selfCount != 1 {
		return newWorkflowError(KindInvalidChain, uuid.Nil, "chain must contain exactly one self entry, found %d", selfCount)
	}
	return nil
}

// normalizeChain moves the self entry to the front and renumbers orders
func normalizeChain(chain Chain) Chain {
	out := make(Chain, 0, len(chain))
	for _, entry := range chain {
		if entry.IsSelf {
			out = append(out, entry)
		}
	}
	for _, entry := range chain {
		if !entry.IsSelf {
			out = append(out, entry)
		}
	}
	for i := range out {
		out[i].Order = i
	}
	return out
}
