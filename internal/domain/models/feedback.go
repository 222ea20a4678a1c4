package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Score bounds for each feedback criterion.
const (
	ScoreMin = 1
	ScoreMax = 5
)

// ScoreCriteria names the five rated criteria, in submission order.
var ScoreCriteria = []string{
	"communication",
	"problem_solving",
	"technical_depth",
	"code_quality",
	"confidence",
}

// Scores holds the five sub-scores of one feedback record.
type Scores struct {
	Communication  int `bson:"communication" json:"communication"`
	ProblemSolving int `bson:"problem_solving" json:"problem_solving"`
	TechnicalDepth int `bson:"technical_depth" json:"technical_depth"`
	CodeQuality    int `bson:"code_quality" json:"code_quality"`
	Confidence     int `bson:"confidence" json:"confidence"`
}

// Values returns the sub-scores in ScoreCriteria order.
func (s Scores) Values() []int {
	return []int{s.Communication, s.ProblemSolving, s.TechnicalDepth, s.CodeQuality, s.Confidence}
}

// ScoresFrom builds Scores from a slice in ScoreCriteria order.
// The caller checks the length.
func ScoresFrom(v []int) Scores {
	return Scores{
		Communication:  v[0],
		ProblemSolving: v[1],
		TechnicalDepth: v[2],
		CodeQuality:    v[3],
		Confidence:     v[4],
	}
}

// Feedback is the single, immutable evaluation of a pair, written by its
// interviewer about its interviewee.
type Feedback struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	PairID      primitive.ObjectID `bson:"pair_id" json:"pair_id"`
	EventID     primitive.ObjectID `bson:"event_id" json:"event_id"`
	RaterID     primitive.ObjectID `bson:"rater_id" json:"rater_id"`
	RateeID     primitive.ObjectID `bson:"ratee_id" json:"ratee_id"`
	Scores      Scores             `bson:"scores" json:"scores"`
	Total       int                `bson:"total" json:"total"`
	Comment     string             `bson:"comment,omitempty" json:"comment,omitempty"`
	SubmittedAt time.Time          `bson:"submitted_at" json:"submitted_at"`
}
