package clinical

// FrailtyInput carries what the elderly assessment form shows about a patient.
// Katz is the activities-of-daily-living score 0..6; a negative value means unknown.
type FrailtyInput struct {
	Age              int
	Katz             int
	ChronicDrugs     int
	Hospitalizations int // last 12 months
	Falls            int // last 12 months
}

// FrailtyScore returns a clinical frailty estimate clamped to 1..9.
func FrailtyScore(in FrailtyInput) int {
	score := 3

	switch {
	case in.Age >= 85:
		score += 2
	case in.Age >= 75:
		score++
	}

	if in.Katz >= 0 {
		switch {
		case in.Katz <= 2:
			score += 3
		case in.Katz <= 4:
			score += 2
		case in.Katz <= 5:
			score++
		}
	}

	switch {
	case in.ChronicDrugs >= 10:
		score += 2
	case in.ChronicDrugs >= 5:
		score++
	}

	if in.Hospitalizations >= 2 {
		score++
	}
	if in.Falls >= 2 {
		score++
	}

	if score < 1 {
		return 1
	}
	if score > 9 {
		return 9
	}
	return score
}

// FollowUpMonths maps a frailty score to the next follow-up period.
func FollowUpMonths(score int) int {
	switch {
	case score >= 7:
		return 3
	case score >= 4:
		return 6
	default:
		return 12
	}
}
