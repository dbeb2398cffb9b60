package guildsweep

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const selectAllToken = "all"

var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrNothingToLeave   = errors.New("no matching servers to leave")
)

// ValidationError describes why a selection string was rejected. When a
// selection is rejected, nothing is selected.
type ValidationError struct {
	Input  string
	Token  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidSelection.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %q: %s", ErrInvalidSelection.Error(), e.Token, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSelection
}

// SelectByPosition resolves a comma-separated list of 1-based positions
// against guilds sorted with SortGuilds, or the word "all" for every
// guild (in list order). Duplicate positions select the same guild more
// than once. If any position is malformed or out of range, the whole
// selection is rejected with a *ValidationError.
func SelectByPosition(guilds []Guild, input string) ([]Guild, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, &ValidationError{Input: input, Reason: "no servers given"}
	}
	if strings.EqualFold(input, selectAllToken) {
		if len(guilds) == 0 {
			return nil, ErrNothingToLeave
		}
		return slices.Clone(guilds), nil
	}

	sorted := SortGuilds(guilds)
	tokens := strings.Split(input, ",")
	selected := make([]Guild, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		pos, err := strconv.Atoi(token)
		if err != nil {
			return nil, &ValidationError{Input: input, Token: token, Reason: "not a number"}
		}
		if pos < 1 || pos > len(sorted) {
			return nil, &ValidationError{
				Input:  input,
				Token:  token,
				Reason: fmt.Sprintf("out of range (1-%d)", len(sorted)),
			}
		}
		selected = append(selected, sorted[pos-1])
	}
	return selected, nil
}

// SelectByID resolves a comma-separated list of guild IDs against guilds.
// IDs that don't match a guild are returned in notFound and skipped.
// Repeated IDs are only selected once. If nothing matched,
// ErrNothingToLeave is returned along with the unmatched IDs.
func SelectByID(guilds []Guild, input string) (selected []Guild, notFound []string, err error) {
	seen := map[string]bool{}
	for _, token := range strings.Split(input, ",") {
		id := strings.TrimSpace(token)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		g, ok := FindGuild(guilds, id)
		if !ok {
			notFound = append(notFound, id)
			continue
		}
		selected = append(selected, g)
	}
	if len(selected) == 0 {
		return nil, notFound, ErrNothingToLeave
	}
	return selected, notFound, nil
}

// Selection is the set of guilds a single leave request acts on. It is
// frozen once a run starts and cleared when the run ends.
type Selection struct {
	mu     sync.Mutex
	guilds []Guild
}

func NewSelection(guilds []Guild) *Selection {
	return &Selection{guilds: slices.Clone(guilds)}
}

// Guilds returns a copy of the selected guilds.
func (s *Selection) Guilds() []Guild {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.guilds)
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.guilds)
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds = nil
}
