package service

import "github.com/noah-isme/school-portal-api/internal/models"

// DefaultPassThreshold is the grading cutoff applied when no override is
// configured. The per-exam pass mark is deliberately not consulted; the
// legacy engine behaves this way and the discrepancy is tracked in config.
const DefaultPassThreshold = 50.0

// ScoreReport is the output of grading one submission.
type ScoreReport struct {
	CorrectCount int                 `json:"correct_count"`
	WrongCount   int                 `json:"wrong_count"`
	Grade        float64             `json:"grade"`
	Status       models.ResultStatus `json:"status"`
	Remarks      string              `json:"remarks"`
	Outcomes     models.OutcomeList  `json:"outcomes"`
}

// GradeSubmission scores an ordered answer list against the exam's ordered
// questions. Answers are matched positionally, not by question id. The
// function is pure: the validator guarantees len(answers) == len(questions)
// and len(questions) > 0 before this is called.
func GradeSubmission(questions []models.Question, answers []string, threshold float64) ScoreReport {
	if threshold <= 0 {
		threshold = DefaultPassThreshold
	}

	outcomes := make(models.OutcomeList, 0, len(questions))
	correct := 0
	for i, q := range questions {
		matched := answers[i] == q.CorrectAnswer
		if matched {
			correct++
		}
		outcomes = append(outcomes, models.QuestionOutcome{
			Question:      q.Prompt,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       matched,
		})
	}

	total := len(questions)
	grade := 100 * float64(correct) / float64(total)

	status := models.StatusFail
	if grade >= threshold {
		status = models.StatusPass
	}

	return ScoreReport{
		CorrectCount: correct,
		WrongCount:   total - correct,
		Grade:        grade,
		Status:       status,
		Remarks:      remarkFor(grade),
		Outcomes:     outcomes,
	}
}

// remarkFor bands the grade; first match wins, lower bounds inclusive.
func remarkFor(grade float64) string {
	switch {
	case grade >= 80:
		return models.RemarkExcellent
	case grade >= 70:
		return models.RemarkVeryGood
	case grade >= 60:
		return models.RemarkGood
	case grade >= 50:
		return models.RemarkFair
	default:
		return models.RemarkPoor
	}
}
