// Package pairgen partitions an event's eligible participants into
// interviewer/interviewee pairs.
package pairgen

import (
	"math/rand/v2"

	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Candidate is one eligible participant with the inputs role assignment needs.
type Candidate struct {
	UserID    primitive.ObjectID
	CarryOver bool
	History   models.RoleHistory
}

// Assignment is one generated pair.
type Assignment struct {
	InterviewerID primitive.ObjectID
	IntervieweeID primitive.ObjectID
}

// Result holds the generated pairs and the participant an odd roster left
// out, if any.
type Result struct {
	Pairs    []Assignment
	Unpaired *primitive.ObjectID
}

// Generator shuffles candidates with its own source so tests can seed it.
type Generator struct {
	rng *rand.Rand
}

// New returns a Generator. A nil rng uses a randomly seeded source.
func New(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rng: rng}
}

// Generate pairs candidates two at a time after a shuffle, carry-over
// candidates first. With fewer than two distinct candidates it returns an
// empty Result and a RosterInsufficient error.
func (g *Generator) Generate(cands []Candidate) (Result, error) {
	var carried, rest []Candidate
	seen := make(map[primitive.ObjectID]bool, len(cands))
	for _, c := range cands {
		if seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		if c.CarryOver {
			carried = append(carried, c)
		} else {
			rest = append(rest, c)
		}
	}

	if len(carried)+len(rest) < 2 {
		return Result{}, apperr.New(apperr.CodeRosterInsufficient, "fewer than two eligible participants")
	}

	g.shuffle(carried)
	g.shuffle(rest)
	order := append(carried, rest...)

	var res Result
	for i := 0; i+1 < len(order); i += 2 {
		res.Pairs = append(res.Pairs, assignRoles(order[i], order[i+1], i/2))
	}
	if len(order)%2 == 1 {
		id := order[len(order)-1].UserID
		res.Unpaired = &id
	}
	return res, nil
}

func (g *Generator) shuffle(c []Candidate) {
	g.rng.Shuffle(len(c), func(i, j int) { c[i], c[j] = c[j], c[i] })
}

// assignRoles makes the candidate with fewer net interviewer turns the
// interviewer. Ties go to whoever was not interviewer last time, then
// alternate by window index.
func assignRoles(a, b Candidate, window int) Assignment {
	ab, bb := a.History.Balance(), b.History.Balance()
	switch {
	case ab < bb:
		return Assignment{InterviewerID: a.UserID, IntervieweeID: b.UserID}
	case bb < ab:
		return Assignment{InterviewerID: b.UserID, IntervieweeID: a.UserID}
	}

	aLast := a.History.LastRole == models.RoleInterviewer
	bLast := b.History.LastRole == models.RoleInterviewer
	switch {
	case aLast && !bLast:
		return Assignment{InterviewerID: b.UserID, IntervieweeID: a.UserID}
	case bLast && !aLast:
		return Assignment{InterviewerID: a.UserID, IntervieweeID: b.UserID}
	}

	if window%2 == 0 {
		return Assignment{InterviewerID: a.UserID, IntervieweeID: b.UserID}
	}
	return Assignment{InterviewerID: b.UserID, IntervieweeID: a.UserID}
}
