package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrInvalidPolicy reports a malformed schedule or repost policy. The
// runner treats it as a trigger-evaluation error: one log entry, campaign
// auto-paused, no retry storm.
type ErrInvalidPolicy struct {
	Field  string
	Reason string
}

func (e *ErrInvalidPolicy) Error() string {
	return fmt.Sprintf("invalid policy: %s %s", e.Field, e.Reason)
}

// ErrInvalidTransition reports a disallowed campaign lifecycle change.
type ErrInvalidTransition struct {
	From, To string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot move campaign from %s to %s", e.From, e.To)
}
