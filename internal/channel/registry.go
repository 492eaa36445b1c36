package channel

import (
	"github.com/gamesite/arcade/internal/matchmaking"
)

// PendingChallenge is a challenge waiting on a user, tagged with the
// channel it belongs to.
type PendingChallenge struct {
	Channel string `json:"channel"`
	matchmaking.Challenge
}

// Registry holds the channels served by this process, keyed by name.
type Registry struct {
	byName map[string]*Channel
	order  []*Channel
}

// NewRegistry builds a registry. A later channel with a duplicate name
// replaces the earlier one.
func NewRegistry(channels ...*Channel) *Registry {
	r := &Registry{byName: make(map[string]*Channel, len(channels))}
	for _, c := range channels {
		if _, dup := r.byName[c.Name()]; !dup {
			r.order = append(r.order, c)
		} else {
			for i, existing := range r.order {
				if existing.Name() == c.Name() {
					r.order[i] = c
				}
			}
		}
		r.byName[c.Name()] = c
	}
	return r
}

// Get returns the channel named name.
func (r *Registry) Get(name string) (*Channel, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// All returns every channel in registration order.
func (r *Registry) All() []*Channel {
	return append([]*Channel(nil), r.order...)
}

// PendingChallengesFor collects challenges waiting on userID across all
// channels.
func (r *Registry) PendingChallengesFor(userID string) []PendingChallenge {
	var out []PendingChallenge
	for _, c := range r.order {
		for _, ch := range c.PendingChallengesFor(userID) {
			out = append(out, PendingChallenge{Channel: c.Name(), Challenge: ch})
		}
	}
	return out
}

// Stats reports the occupancy of every channel.
func (r *Registry) Stats() []Stats {
	out := make([]Stats, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, c.Stats())
	}
	return out
}

// Wait blocks until background work on every channel finishes.
func (r *Registry) Wait() {
	for _, c := range r.order {
		c.Wait()
	}
}
