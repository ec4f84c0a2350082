package rooms

import "fmt"

// Kind discriminates the four broadcast-room flavours. Rooms used to be told
// apart by string prefixes on their names; the tag makes the disconnect
// cleanup ("only group rooms emit presence") a comparison instead of parsing.
type Kind int

const (
	KindPersonal Kind = iota + 1
	KindGroup
	KindScheduleSlot
	KindGroupWeek
)

func (k Kind) String() string {
	switch k {
	case KindPersonal:
		return "personal"
	case KindGroup:
		return "group"
	case KindScheduleSlot:
		return "schedule_slot"
	case KindGroupWeek:
		return "group_week"
	default:
		return "unknown"
	}
}

// ID identifies one broadcast room. Comparable, so it can key membership
// maps directly.
type ID struct {
	Kind Kind
	// Ref is the user id (personal), group id (group, group_week) or
	// schedule slot id (schedule_slot).
	Ref string
	// Week is set only for KindGroupWeek, ISO-week form "2026-W35".
	Week string
}

func Personal(userID string) ID {
	return ID{Kind: KindPersonal, Ref: userID}
}

func Group(groupID string) ID {
	return ID{Kind: KindGroup, Ref: groupID}
}

func ScheduleSlot(slotID string) ID {
	return ID{Kind: KindScheduleSlot, Ref: slotID}
}

func GroupWeek(groupID, week string) ID {
	return ID{Kind: KindGroupWeek, Ref: groupID, Week: week}
}

// String renders the room name used in logs.
func (id ID) String() string {
	switch id.Kind {
	case KindPersonal:
		return "user:" + id.Ref
	case KindGroup:
		return "group:" + id.Ref
	case KindScheduleSlot:
		return "slot:" + id.Ref
	case KindGroupWeek:
		return fmt.Sprintf("group:%s:week:%s", id.Ref, id.Week)
	default:
		return "invalid:" + id.Ref
	}
}

func (id ID) IsZero() bool {
	return id.Kind == 0
}
