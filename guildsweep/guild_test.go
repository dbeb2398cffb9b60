package guildsweep

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuild_CreatedAt(t *testing.T) {
	g := Guild{ID: "197038439483310086", Name: "Discord Testers"}
	created, ok := g.CreatedAt()
	require.True(t, ok)
	assert.Equal(
		t,
		time.Date(2016, time.June, 27, 17, 20, 24, 770*int(time.Millisecond), time.UTC),
		created,
	)

	for _, id := range []string{"", "abc", "-5", "0"} {
		_, ok = Guild{ID: id}.CreatedAt()
		assert.Falsef(t, ok, "expected %q to be rejected", id)
	}
}

func TestSortGuilds(t *testing.T) {
	guilds := []Guild{
		{ID: "1", Name: "beta"},
		{ID: "2", Name: "Alpha"},
		{ID: "3", Name: "Beta"},
		{ID: "4", Name: "alpha"},
	}
	sorted := SortGuilds(guilds)

	assert.Equal(
		t,
		[]Guild{
			{ID: "2", Name: "Alpha"},
			{ID: "4", Name: "alpha"},
			{ID: "1", Name: "beta"},
			{ID: "3", Name: "Beta"},
		},
		sorted,
	)
	assert.Equal(t, "1", guilds[0].ID, "input should not be reordered")
}

func TestFindGuild(t *testing.T) {
	guilds := []Guild{{ID: "1", Name: "One"}, {ID: "2", Name: "Two"}}

	g, ok := FindGuild(guilds, "2")
	assert.True(t, ok)
	assert.Equal(t, "Two", g.Name)

	_, ok = FindGuild(guilds, "3")
	assert.False(t, ok)
}

func TestGuildList(t *testing.T) {
	list := NewGuildList()
	assert.False(t, list.Loaded())
	assert.True(t, list.UpdatedAt().IsZero())
	assert.Equal(t, 0, list.Len())
	assert.NotNil(t, list.Snapshot())

	guilds := []Guild{{ID: "1", Name: "One"}}
	list.Replace(guilds)
	guilds[0].Name = "Changed"

	assert.True(t, list.Loaded())
	assert.False(t, list.UpdatedAt().IsZero())
	assert.Equal(t, []Guild{{ID: "1", Name: "One"}}, list.Snapshot())

	snapshot := list.Snapshot()
	snapshot[0].Name = "Changed again"
	assert.Equal(t, "One", list.Snapshot()[0].Name)

	list.Replace(nil)
	assert.True(t, list.Loaded())
	assert.Equal(t, []Guild{}, list.Snapshot())
}

// Readers should only ever see one of the complete snapshots written
func TestGuildList_ConcurrentReplace(t *testing.T) {
	list := NewGuildList()
	snapshots := make([][]Guild, 5)
	for i := range snapshots {
		for j := 0; j <= i; j++ {
			snapshots[i] = append(
				snapshots[i],
				Guild{ID: fmt.Sprintf("%d-%d", i, j), Name: fmt.Sprintf("guild %d", i)},
			)
		}
	}

	wg := &sync.WaitGroup{}
	for _, s := range snapshots {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				list.Replace(s)
			}
		}()
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snapshot := list.Snapshot()
				if len(snapshot) == 0 {
					continue
				}
				expected := snapshots[len(snapshot)-1]
				assert.Equal(t, expected, snapshot)
			}
		}()
	}
	wg.Wait()
}
