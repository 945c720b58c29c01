package gamification

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestGamificationProperties checks the level curve and reward formulas over random inputs.
func TestGamificationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("level is at least 1", prop.ForAll(
		func(xp int) bool {
			return CalculateLevel(xp) >= 1
		},
		gen.IntRange(0, 10_000_000),
	))

	properties.Property("level never decreases as xp grows", prop.ForAll(
		func(xp, delta int) bool {
			return CalculateLevel(xp+delta) >= CalculateLevel(xp)
		},
		gen.IntRange(0, 5_000_000),
		gen.IntRange(0, 5_000_000),
	))

	properties.Property("lesson reward matches formula", prop.ForAll(
		func(difficulty string, duration int) bool {
			m := map[string]float64{Beginner: 1.0, Intermediate: 1.5, Advanced: 2.0}[difficulty]
			want := int(math.Floor(50*m + float64((duration/10)*10)))
			got := LessonXPReward(difficulty, duration)
			return got == want && got >= 0
		},
		gen.OneConstOf(Beginner, Intermediate, Advanced),
		gen.IntRange(15, 120),
	))

	properties.Property("quiz reward matches formula", prop.ForAll(
		func(difficulty string, questions int) bool {
			m := map[string]float64{Beginner: 1.0, Intermediate: 1.4, Advanced: 1.8}[difficulty]
			want := int(math.Floor(30*m + float64(questions*5)))
			return QuizXPReward(difficulty, questions) == want
		},
		gen.OneConstOf(Beginner, Intermediate, Advanced),
		gen.IntRange(3, 12),
	))

	properties.Property("score xp never exceeds the quiz reward", prop.ForAll(
		func(reward, correct, total int) bool {
			got := QuizScoreXP(reward, correct, total)
			return got >= 0 && got <= reward
		},
		gen.IntRange(0, 500),
		gen.IntRange(0, 20),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
