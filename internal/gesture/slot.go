// Package gesture converts drag-and-drop events from the tree renderer into
// hierarchy moves.
package gesture

import (
	"fmt"
	"strconv"
	"strings"

	"organiflow/api/internal/hierarchy"
)

const (
	slotPrefix = "node-id-"
	slotInfix  = "-slot-"
)

// SlotError reports a slot identifier that does not carry an employee id.
type SlotError struct {
	Slot   string
	Reason string
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("invalid slot %q: %s", e.Slot, e.Reason)
}

// ParseSlotID extracts the employee id from a renderer slot identifier of the
// form "node-id-<id>-slot-<anything>" or the bare "node-id-<id>".
func ParseSlotID(slot string) (int64, error) {
	trimmed := strings.TrimSpace(slot)
	rest, ok := strings.CutPrefix(trimmed, slotPrefix)
	if !ok {
		return 0, &SlotError{Slot: slot, Reason: "missing " + slotPrefix + " prefix"}
	}
	if head, _, found := strings.Cut(rest, slotInfix); found {
		rest = head
	}
	if rest == "" {
		return 0, &SlotError{Slot: slot, Reason: "missing employee id"}
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, &SlotError{Slot: slot, Reason: "employee id must be a positive integer"}
	}
	return id, nil
}

// SlotID formats the identifier the renderer assigns to an employee card.
func SlotID(e hierarchy.Employee) string {
	manager := "none"
	if e.ManagerID != nil {
		manager = strconv.FormatInt(*e.ManagerID, 10)
	}
	return slotPrefix + strconv.FormatInt(e.ID, 10) + slotInfix + "manager-id-" + manager
}

// SwapEnd is the event emitted when a drag gesture finishes.
type SwapEnd struct {
	FromSlot   string `json:"fromSlot"`
	ToSlot     string `json:"toSlot"`
	HasChanged bool   `json:"hasChanged"`
}

// Move derives the hierarchy move for the event. ok is false when nothing
// moved: the event says so, or the card was dropped back on its own slot.
func (e SwapEnd) Move() (move hierarchy.Move, ok bool, err error) {
	if !e.HasChanged {
		return hierarchy.Move{}, false, nil
	}
	from, err := ParseSlotID(e.FromSlot)
	if err != nil {
		return hierarchy.Move{}, false, err
	}
	to, err := ParseSlotID(e.ToSlot)
	if err != nil {
		return hierarchy.Move{}, false, err
	}
	if from == to {
		return hierarchy.Move{}, false, nil
	}
	return hierarchy.Move{SourceID: from, TargetID: to}, true, nil
}
