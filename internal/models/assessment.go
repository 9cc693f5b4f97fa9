package models

type CVAssessment struct {
	Skills          []string `json:"skills"`
	ExperienceYears float64  `json:"experience_years"`
	Education       []string `json:"education"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	OverallFitScore int      `json:"overall_fit_score"`
}

// Normalize clamps the fit score into 0..100 and replaces nil lists.
func (a *CVAssessment) Normalize() {
	if a.OverallFitScore < 0 {
		a.OverallFitScore = 0
	}
	if a.OverallFitScore > 100 {
		a.OverallFitScore = 100
	}
	if a.ExperienceYears < 0 {
		a.ExperienceYears = 0
	}
	for _, list := range []*[]string{&a.Skills, &a.Education, &a.Strengths, &a.Weaknesses} {
		if *list == nil {
			*list = []string{}
		}
	}
}

// SnapshotObservation is the oracle's reading of one webcam still.
type SnapshotObservation struct {
	FaceCount    int    `json:"face_count"`
	LookingAway  bool   `json:"looking_away"`
	OtherPerson  bool   `json:"other_person"`
	PhoneVisible bool   `json:"phone_visible"`
	Suspicious   bool   `json:"suspicious"`
	Notes        string `json:"notes"`
}

func (o SnapshotObservation) Flagged() bool {
	return o.Suspicious || o.FaceCount != 1 || o.OtherPerson || o.PhoneVisible
}
