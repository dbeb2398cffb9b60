package guildsweep

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	// unknownGuildName is shown for guilds the API returned without a name
	unknownGuildName = "Unknown Server"

	// discordEpoch is the first millisecond of 2015, the epoch Discord
	// snowflake timestamps are relative to.
	discordEpoch int64 = 1420070400000
)

// Guild is a server the account belongs to. Guilds are compared and
// selected by ID.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (g Guild) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", g.ID),
		slog.String("name", g.Name),
	)
}

// CreatedAt returns the creation time encoded in the guild's snowflake ID.
// The boolean is false if the ID isn't a valid snowflake.
func (g Guild) CreatedAt() (time.Time, bool) {
	id, err := snowflake.ParseString(g.ID)
	if err != nil || id.Int64() <= 0 {
		return time.Time{}, false
	}
	// ID.Time() adds the package-level epoch, which isn't Discord's
	ms := id.Time() - snowflake.Epoch + discordEpoch
	return time.UnixMilli(ms).UTC(), true
}

// SortGuilds returns a copy of guilds sorted by name, case-insensitively.
// Guilds with equal names keep their relative order.
func SortGuilds(guilds []Guild) []Guild {
	sorted := slices.Clone(guilds)
	slices.SortStableFunc(
		sorted, func(a, b Guild) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		},
	)
	return sorted
}

// FindGuild returns the first guild with the given ID.
func FindGuild(guilds []Guild, id string) (Guild, bool) {
	for _, g := range guilds {
		if g.ID == id {
			return g, true
		}
	}
	return Guild{}, false
}

// GuildList holds the most recent full snapshot of the account's guilds.
// It is only ever replaced wholesale, so readers always see a complete
// snapshot.
type GuildList struct {
	mu        sync.RWMutex
	guilds    []Guild
	updatedAt time.Time
	loaded    bool
}

func NewGuildList() *GuildList {
	return &GuildList{guilds: []Guild{}}
}

// Replace swaps in a new snapshot.
func (l *GuildList) Replace(guilds []Guild) {
	snapshot := slices.Clone(guilds)
	if snapshot == nil {
		snapshot = []Guild{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.guilds = snapshot
	l.updatedAt = time.Now()
	l.loaded = true
}

// Snapshot returns a copy of the current list.
func (l *GuildList) Snapshot() []Guild {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.guilds)
}

func (l *GuildList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.guilds)
}

// UpdatedAt is the time of the last Replace, or the zero time.
func (l *GuildList) UpdatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updatedAt
}

// Loaded reports whether any snapshot has been stored yet.
func (l *GuildList) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}
