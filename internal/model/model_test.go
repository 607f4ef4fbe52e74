package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindUnitFollowsOrder(t *testing.T) {
	units := []Unit{{ID: 1, Name: "Stück"}, {ID: 2, Name: "Packung"}, {ID: 5, Name: "Liter"}}

	u := FindUnit(units, []int64{9, 5, 2})
	require.NotNil(t, u)
	require.Equal(t, "Liter", u.Name)

	u.Name = "changed"
	require.Equal(t, "Liter", units[2].Name)

	require.Nil(t, FindUnit(units, []int64{7}))
	require.Nil(t, FindUnit(nil, []int64{1}))
	require.Nil(t, FindUnit(units, nil))
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Anna Schmidt", HelpRequest{FirstName: "Anna", LastName: "Schmidt"}.DisplayName())
	require.Equal(t, "Ben", HelpRequest{FirstName: "Ben"}.DisplayName())
	require.Equal(t, "anonymous", HelpRequest{FirstName: "  "}.DisplayName())
}

func TestItemBlank(t *testing.T) {
	require.True(t, Item{}.Blank())
	require.True(t, Item{Name: " \t", Amount: 2}.Blank())
	require.False(t, Item{Name: "Milch"}.Blank())
}
