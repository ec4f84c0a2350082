package rooms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schoolpool/realtime/pkg/rooms"
)

func TestStringForms(t *testing.T) {
	assert.Equal(t, "user:u1", rooms.Personal("u1").String())
	assert.Equal(t, "group:g1", rooms.Group("g1").String())
	assert.Equal(t, "slot:s1", rooms.ScheduleSlot("s1").String())
	assert.Equal(t, "group:g1:week:2026-W35", rooms.GroupWeek("g1", "2026-W35").String())
}

func TestSameRefDifferentKindsAreDistinct(t *testing.T) {
	seen := map[rooms.ID]int{
		rooms.Personal("x"):     1,
		rooms.Group("x"):        2,
		rooms.ScheduleSlot("x"): 3,
	}
	assert.Len(t, seen, 3)
	assert.NotEqual(t, rooms.Group("x"), rooms.GroupWeek("x", "2026-W01"))
}

func TestGroupWeekEquality(t *testing.T) {
	assert.Equal(t, rooms.GroupWeek("g", "2026-W02"), rooms.GroupWeek("g", "2026-W02"))
	assert.NotEqual(t, rooms.GroupWeek("g", "2026-W02"), rooms.GroupWeek("g", "2026-W03"))
}

func TestIsZero(t *testing.T) {
	var id rooms.ID
	assert.True(t, id.IsZero())
	assert.False(t, rooms.Group("g").IsZero())
}
