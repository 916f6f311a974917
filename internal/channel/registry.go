// Package channel resolves campaign connections to concrete destination
// channels with dispatch-ready credentials.
package channel

import (
	"fmt"
	"time"

	"github.com/postpilot/postpilot-backend/internal/model"
)

// Store is the slice of the connection repository the registry needs.
type Store interface {
	GetChannel(id int) (*model.Channel, error)
	ListChannelsByGroup(groupID int) ([]*model.Channel, error)
}

// Skip records a channel (or an entire connection) that could not be
// dispatched to. Skips are logged, never fatal to the campaign.
type Skip struct {
	ChannelID int // 0 when the connection itself failed to resolve
	Reason    string
}

type Registry struct {
	Store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{Store: store}
}

// Resolve expands a connection into its concrete channels, filtering out
// channels whose credentials are missing or expired. It always returns a
// usable (possibly empty) channel list plus the skips for the log.
func (r *Registry) Resolve(conn *model.Connection, now time.Time) ([]*model.Channel, []Skip, error) {
	var candidates []*model.Channel

	switch conn.TargetType {
	case model.TargetChannel:
		ch, err := r.Store.GetChannel(conn.TargetID)
		if err != nil {
			return nil, nil, err
		}
		if ch == nil {
			return nil, []Skip{{Reason: fmt.Sprintf("connection %d: channel %d not found", conn.ID, conn.TargetID)}}, nil
		}
		candidates = []*model.Channel{ch}
	case model.TargetGroup:
		chans, err := r.Store.ListChannelsByGroup(conn.TargetID)
		if err != nil {
			return nil, nil, err
		}
		if len(chans) == 0 {
			return nil, []Skip{{Reason: fmt.Sprintf("connection %d: group %d has no channels", conn.ID, conn.TargetID)}}, nil
		}
		candidates = chans
	default:
		return nil, []Skip{{Reason: fmt.Sprintf("connection %d: unknown target type %q", conn.ID, conn.TargetType)}}, nil
	}

	resolved := make([]*model.Channel, 0, len(candidates))
	var skips []Skip
	for _, ch := range candidates {
		if !ch.CredentialValid(now) {
			skips = append(skips, Skip{ChannelID: ch.ID, Reason: "credential missing or expired"})
			continue
		}
		resolved = append(resolved, ch)
	}
	return resolved, skips, nil
}
