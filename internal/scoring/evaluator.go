package scoring

import (
	"time"

	"exam-engine/internal/domain"
)

// SectionEvaluation is the outcome of grading one section submission.
type SectionEvaluation struct {
	Progress domain.SectionProgress
	// Answers holds one record per question of the section, in presentation order.
	Answers []*domain.AttemptAnswer
	// OpenEnded lists the questions whose answers must go to the AI grader.
	OpenEnded []int64
}

// EvaluateSection grades the objective questions of a section against the
// submitted values keyed by question id. Questions without a submitted value
// count towards TotalQuestions but not AnsweredCount. Subjective answers are
// left ungraded.
func EvaluateSection(attemptID int64, section *domain.Section, submitted map[int64]interface{}, now time.Time) SectionEvaluation {
	eval := SectionEvaluation{
		Progress: domain.SectionProgress{
			Status:      domain.SectionCompleted,
			SubmittedAt: now,
		},
	}

	for _, q := range section.Questions() {
		payload := submitted[q.ID]
		answer := &domain.AttemptAnswer{
			AttemptID:  attemptID,
			SectionID:  section.ID,
			QuestionID: q.ID,
			Payload:    payload,
			AnsweredAt: now,
			UpdatedAt:  now,
		}
		eval.Progress.TotalQuestions++
		if payload != nil {
			eval.Progress.AnsweredCount++
		}

		if g, ok := q.Objective(); ok {
			score := 0.0
			if payload != nil {
				correct := CompareAnswer(g.CorrectAnswer, payload)
				answer.IsCorrect = &correct
				if correct {
					score = g.ScoreWeight
					eval.Progress.CorrectCount++
					eval.Progress.EarnedScore += score
				}
			}
			answer.Score = &score
		} else if q.QuestionType.IsOpenEnded() && answer.HasPayload() {
			eval.OpenEnded = append(eval.OpenEnded, q.ID)
		}

		eval.Answers = append(eval.Answers, answer)
	}

	return eval
}
