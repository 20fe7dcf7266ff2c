package documents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCandidates() []Candidate {
	return []Candidate{
		{EmployeeID: "r1", Name: "Reviewer One", Role: "Lead"},
		{EmployeeID: "owner", Name: "Owner", IsSelf: true},
		{EmployeeID: "r2", Name: "Reviewer Two", Role: "Manager"},
		{EmployeeID: "r3", Name: "Reviewer Three", Role: "Director"},
	}
}

func chainIDs(chain Chain) []string {
	ids := make([]string, len(chain))
	for i, entry := range chain {
		ids[i] = entry.EmployeeID
	}
	return ids
}

func TestSelectUpTo(t *testing.T) {
	tests := []struct {
		name string
		k    int
		want []string
	}{
		{name: "self only", k: -1, want: []string{"owner"}},
		{name: "first candidate", k: 0, want: []string{"owner", "r1"}},
		{name: "clicking self selects the prefix", k: 1, want: []string{"owner", "r1"}},
		{name: "middle candidate", k: 2, want: []string{"owner", "r1", "r2"}},
		{name: "last candidate", k: 3, want: []string{"owner", "r1", "r2", "r3"}},
		{name: "index past the end", k: 10, want: []string{"owner", "r1", "r2", "r3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := SelectUpTo(testCandidates(), tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.want, chainIDs(chain))
			assert.True(t, chain[0].IsSelf)
			for i, entry := range chain {
				assert.Equal(t, i, entry.Order)
			}
			assert.True(t, IsPrefixClosed(testCandidates(), chain))
		})
	}
}

func TestDeselectFrom(t *testing.T) {
	chain, err := DeselectFrom(testCandidates(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "r1"}, chainIDs(chain))

	chain, err = DeselectFrom(testCandidates(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, chainIDs(chain))
}

func TestSelectUpToErrors(t *testing.T) {
	_, err := SelectUpTo(nil, 0)
	assert.True(t, errors.Is(err, ErrEmptySelection))

	_, err = SelectUpTo([]Candidate{{EmployeeID: "r1"}}, 0)
	assert.True(t, errors.Is(err, ErrInvalidChain))

	_, err = SelectUpTo([]Candidate{
		{EmployeeID: "a", IsSelf: true},
		{EmployeeID: "b", IsSelf: true},
	}, 1)
	assert.True(t, errors.Is(err, ErrInvalidChain))
}

func TestIsPrefixClosed(t *testing.T) {
	candidates := testCandidates()

	assert.True(t, IsPrefixClosed(candidates, Chain{{EmployeeID: "owner", IsSelf: true}}))
	assert.False(t, IsPrefixClosed(candidates, Chain{
		{EmployeeID: "owner", IsSelf: true},
		{EmployeeID: "r2"},
	}))
	assert.False(t, IsPrefixClosed(candidates, Chain{
		{EmployeeID: "owner", IsSelf: true},
		{EmployeeID: "r1"},
		{EmployeeID: "r3"},
	}))
}

func TestValidateChain(t *testing.T) {
	assert.True(t, errors.Is(ValidateChain(nil), ErrEmptySelection))
	assert.True(t, errors.Is(ValidateChain(Chain{{EmployeeID: "r1"}}), ErrInvalidChain))
	assert.True(t, errors.Is(ValidateChain(Chain{
		{EmployeeID: "owner", IsSelf: true},
		{EmployeeID: "r1"},
		{EmployeeID: "r1"},
	}), ErrInvalidChain))
	assert.True(t, errors.Is(ValidateChain(Chain{
		{EmployeeID: "owner", IsSelf: true},
		{EmployeeID: ""},
	}), ErrInvalidChain))
	assert.NoError(t, ValidateChain(Chain{
		{EmployeeID: "r1"},
		{EmployeeID: "owner", IsSelf: true},
	}))
}

func TestNormalizeChainMovesSelfFirst(t *testing.T) {
	chain := normalizeChain(Chain{
		{EmployeeID: "r1", Order: 5},
		{EmployeeID: "owner", IsSelf: true, Order: 9},
		{EmployeeID: "r2", Order: 1},
	})
	assert.Equal(t, []string{"owner", "r1", "r2"}, chainIDs(chain))
	assert.Equal(t, 0, chain[0].Order)
	assert.Equal(t, 2, chain[2].Order)
}
