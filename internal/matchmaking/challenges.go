package matchmaking

import (
	"sort"
	"time"
)

// Challenge is a pending private invitation from Challenger to Target.
type Challenge struct {
	Challenger string    `json:"challengerId"`
	Target     string    `json:"targetId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Challenges holds at most one pending challenge per challenger.
type Challenges struct {
	byChallenger map[string]Challenge
}

// NewChallenges creates an empty challenge map.
func NewChallenges() *Challenges {
	return &Challenges{byChallenger: make(map[string]Challenge)}
}

// Put records a challenge, replacing any earlier one from the same
// challenger. The replaced challenge is returned when there was one.
func (c *Challenges) Put(challenger, target string, now time.Time) (Challenge, bool) {
	prev, replaced := c.byChallenger[challenger]
	c.byChallenger[challenger] = Challenge{Challenger: challenger, Target: target, CreatedAt: now}
	return prev, replaced
}

// Get returns the pending challenge issued by challenger.
func (c *Challenges) Get(challenger string) (Challenge, bool) {
	ch, ok := c.byChallenger[challenger]
	return ch, ok
}

// Remove deletes the challenge issued by challenger.
func (c *Challenges) Remove(challenger string) bool {
	if _, ok := c.byChallenger[challenger]; !ok {
		return false
	}
	delete(c.byChallenger, challenger)
	return true
}

// TargetedAt lists the challenges waiting on target, oldest first.
func (c *Challenges) TargetedAt(target string) []Challenge {
	var out []Challenge
	for _, ch := range c.byChallenger {
		if ch.Target == target {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Challenger < out[j].Challenger
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of pending challenges.
func (c *Challenges) Len() int {
	return len(c.byChallenger)
}
