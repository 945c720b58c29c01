// Package gamification holds the XP and level arithmetic shared by the tutor tools.
// Everything here is pure; persisting XP is the storage layer's job.
package gamification

import "math"

// Difficulty levels accepted by the lesson and quiz generators.
const (
	Beginner     = "beginner"
	Intermediate = "intermediate"
	Advanced     = "advanced"
)

// Fixed XP amounts credited for activities.
const (
	LessonCreationXP = 10
	ChatMessageXP    = 5
)

// Lesson and quiz rewards use separate multiplier tables. They intentionally differ.
var (
	lessonMultipliers = map[string]float64{
		Beginner:     1.0,
		Intermediate: 1.5,
		Advanced:     2.0,
	}
	quizMultipliers = map[string]float64{
		Beginner:     1.0,
		Intermediate: 1.4,
		Advanced:     1.8,
	}
)

// IsDifficulty reports whether d is one of the three known difficulty levels.
func IsDifficulty(d string) bool {
	_, ok := lessonMultipliers[d]
	return ok
}

// CalculateLevel maps an XP total to a level: floor(sqrt(xp/100)) + 1.
// Negative totals are treated as zero.
func CalculateLevel(xp int) int {
	if xp <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(xp)/100))) + 1
}

// XPForLevel returns the minimum XP total that reaches level.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return (level - 1) * (level - 1) * 100
}

// XPToNextLevel returns how much XP is still needed to reach the next level.
func XPToNextLevel(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return XPForLevel(CalculateLevel(xp)+1) - xp
}

// LessonXPReward computes the consumption reward advertised for a lesson:
// floor(50*multiplier + floor(duration/10)*10). Unknown difficulties use the
// beginner multiplier.
func LessonXPReward(difficulty string, duration int) int {
	if duration < 0 {
		duration = 0
	}
	m, ok := lessonMultipliers[difficulty]
	if !ok {
		m = lessonMultipliers[Beginner]
	}
	bonus := (duration / 10) * 10
	return int(math.Floor(50*m + float64(bonus)))
}

// QuizXPReward computes floor(30*multiplier + questions*5).
func QuizXPReward(difficulty string, questions int) int {
	if questions < 0 {
		questions = 0
	}
	m, ok := quizMultipliers[difficulty]
	if !ok {
		m = quizMultipliers[Beginner]
	}
	return int(math.Floor(30*m + float64(questions*5)))
}

// QuizScoreXP scales a quiz's reward by the fraction of correct answers.
func QuizScoreXP(xpReward, correct, total int) int {
	if total <= 0 || correct <= 0 || xpReward <= 0 {
		return 0
	}
	if correct > total {
		correct = total
	}
	return xpReward * correct / total
}
