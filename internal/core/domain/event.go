package domain

import "fmt"

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// ChangeEvent describes one remote mutation. Created and updated events carry
// a full snapshot in Item; deleted events carry only ItemID.
type ChangeEvent struct {
	Type    ChangeType `json:"event_type"`
	OwnerID string     `json:"owner_id"`
	Item    *Item      `json:"item,omitempty"`
	ItemID  string     `json:"item_id,omitempty"`
}

// SubjectID returns the id of the item the event refers to.
func (e ChangeEvent) SubjectID() string {
	if e.Item != nil {
		return e.Item.ID
	}
	return e.ItemID
}

func (e ChangeEvent) Validate() error {
	switch e.Type {
	case ChangeCreated, ChangeUpdated:
		if e.Item == nil {
			return fmt.Errorf("%w: %s event without snapshot", ErrMalformedRecord, e.Type)
		}
		return e.Item.Validate()
	case ChangeDeleted:
		if e.SubjectID() == "" {
			return fmt.Errorf("%w: delete event without id", ErrMalformedRecord)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrMalformedRecord, e.Type)
	}
}
