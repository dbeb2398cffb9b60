package guildsweep

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGuilds = []Guild{
	{ID: "1", Name: "Beta"},
	{ID: "2", Name: "Alpha"},
	{ID: "3", Name: "gamma"},
}

func TestSelectByPosition(t *testing.T) {
	testCases := []struct {
		name     string
		guilds   []Guild
		input    string
		expected []Guild
	}{
		{
			name:     "position uses alphabetical order",
			guilds:   []Guild{{ID: "1", Name: "Beta"}, {ID: "2", Name: "Alpha"}},
			input:    "1",
			expected: []Guild{{ID: "2", Name: "Alpha"}},
		},
		{
			name:   "several positions keep input order",
			guilds: testGuilds,
			input:  "3, 1",
			expected: []Guild{
				{ID: "3", Name: "gamma"},
				{ID: "2", Name: "Alpha"},
			},
		},
		{
			name:   "duplicates are kept",
			guilds: testGuilds,
			input:  "2,2",
			expected: []Guild{
				{ID: "1", Name: "Beta"},
				{ID: "1", Name: "Beta"},
			},
		},
		{
			name:     "all returns list order",
			guilds:   testGuilds,
			input:    " ALL ",
			expected: testGuilds,
		},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				selected, err := SelectByPosition(tc.guilds, tc.input)
				require.NoError(t, err)
				if diff := cmp.Diff(tc.expected, selected); diff != "" {
					t.Errorf("unexpected selection (-want +got):\n%s", diff)
				}
			},
		)
	}
}

func TestSelectByPosition_Rejected(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		token string
	}{
		{name: "empty", input: "  "},
		{name: "zero", input: "0", token: "0"},
		{name: "past the end", input: "1,4", token: "4"},
		{name: "negative", input: "-1", token: "-1"},
		{name: "not a number", input: "1,two", token: "two"},
		{name: "trailing comma", input: "1,", token: ""},
		{name: "all mixed with numbers", input: "all,1", token: "all"},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				guilds := SortGuilds(testGuilds)
				before := SortGuilds(testGuilds)

				selected, err := SelectByPosition(guilds, tc.input)
				assert.Nil(t, selected)
				require.ErrorIs(t, err, ErrInvalidSelection)

				var validationErr *ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, tc.token, validationErr.Token)
				assert.NotEmpty(t, validationErr.Reason)

				assert.Equal(t, before, guilds, "input list should be untouched")
			},
		)
	}
}

func TestSelectByPosition_AllEmpty(t *testing.T) {
	_, err := SelectByPosition(nil, "all")
	assert.ErrorIs(t, err, ErrNothingToLeave)
}

// Every selection either resolves one guild per token, or nothing at all
func TestSelectByPosition_AllOrNothing(t *testing.T) {
	inputs := []string{"1", "1,2,3", "3,3,3,3", "4", "1,2,9", "x", "2,,3", "1 2"}
	for _, input := range inputs {
		selected, err := SelectByPosition(testGuilds, input)
		if err != nil {
			assert.Nil(t, selected, input)
			continue
		}
		tokens := 1
		for _, c := range input {
			if c == ',' {
				tokens++
			}
		}
		assert.Len(t, selected, tokens, input)
	}
}

func TestSelectByID(t *testing.T) {
	selected, notFound, err := SelectByID(testGuilds, "2,999")
	require.NoError(t, err)
	if diff := cmp.Diff([]Guild{{ID: "2", Name: "Alpha"}}, selected); diff != "" {
		t.Errorf("unexpected selection (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"999"}, notFound)
}

func TestSelectByID_DeduplicatesAndSkipsBlanks(t *testing.T) {
	selected, notFound, err := SelectByID(testGuilds, " 3, ,1,3,, 1 ")
	require.NoError(t, err)
	assert.Empty(t, notFound)
	if diff := cmp.Diff(
		[]Guild{{ID: "3", Name: "gamma"}, {ID: "1", Name: "Beta"}},
		selected,
	); diff != "" {
		t.Errorf("unexpected selection (-want +got):\n%s", diff)
	}
}

func TestSelectByID_NothingMatched(t *testing.T) {
	selected, notFound, err := SelectByID(testGuilds, "8,9")
	assert.ErrorIs(t, err, ErrNothingToLeave)
	assert.Empty(t, selected)
	assert.Equal(t, []string{"8", "9"}, notFound)

	_, notFound, err = SelectByID(testGuilds, "")
	assert.ErrorIs(t, err, ErrNothingToLeave)
	assert.Empty(t, notFound)
}

func TestSelection(t *testing.T) {
	guilds := []Guild{{ID: "1", Name: "One"}}
	sel := NewSelection(guilds)
	guilds[0].Name = "Changed"

	assert.Equal(t, 1, sel.Len())
	assert.Equal(t, []Guild{{ID: "1", Name: "One"}}, sel.Guilds())

	sel.Clear()
	assert.Equal(t, 0, sel.Len())
	assert.Empty(t, sel.Guilds())
}
