package training

import (
	"sort"
	"sync"

	"artificer/internal/logging"
	"artificer/internal/types"
)

// =============================================================================
// DIFFICULTY
// =============================================================================

// Difficulty bands. Easy caps at 0.35, medium at 0.65, the rest is hard.
const (
	BandEasy   = "easy"
	BandMedium = "medium"
	BandHard   = "hard"
)

func Band(difficulty float64) string {
	switch {
	case difficulty <= 0.35:
		return BandEasy
	case difficulty <= 0.65:
		return BandMedium
	default:
		return BandHard
	}
}

// EstimateDifficulty scores an example in [0,1] from the type's
// inherent complexity, the prompt size, and how far validation stayed
// from perfect.
func EstimateDifficulty(ex types.TrainingExample) float64 {
	typeScore := ex.ArtifactType.ComplexityWeight()
	promptScore := clamp01(float64(len(ex.Instruction)+len(ex.Input)) / 3000.0)
	inverseScore := 1.0 - clamp01(ex.QualityScore/100.0)
	return clamp01(0.4*typeScore + 0.3*promptScore + 0.3*inverseScore)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// =============================================================================
// CURRICULUM STAGES
// =============================================================================

const (
	maxStage       = 4
	defaultWindow  = 3
	defaultAdvance = 75.0
)

// stageMix is the easy/medium/hard composition per stage.
var stageMix = map[int][3]float64{
	1: {1.0, 0, 0},
	2: {0.7, 0.3, 0},
	3: {0.5, 0.3, 0.2},
	4: {0.4, 0.3, 0.3},
}

var stageNames = map[int]string{1: "easy", 2: "medium", 3: "hard", 4: "mixed"}

// StageName names a curriculum stage for batch metadata.
func StageName(stage int) string {
	if name, ok := stageNames[stage]; ok {
		return name
	}
	return stageNames[1]
}

// Curriculum tracks a per-type learning stage that advances when the
// last few evaluation scores clear the progression floor.
type Curriculum struct {
	window  int
	advance float64

	mu     sync.Mutex
	stages map[types.ArtifactType]int
	recent map[types.ArtifactType][]float64
}

func NewCurriculum(window int, advanceScore float64) *Curriculum {
	if window <= 0 {
		window = defaultWindow
	}
	if advanceScore <= 0 {
		advanceScore = defaultAdvance
	}
	return &Curriculum{
		window:  window,
		advance: advanceScore,
		stages:  make(map[types.ArtifactType]int),
		recent:  make(map[types.ArtifactType][]float64),
	}
}

func (c *Curriculum) StageFor(at types.ArtifactType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked(at.Normalize())
}

func (c *Curriculum) stageLocked(at types.ArtifactType) int {
	if s, ok := c.stages[at]; ok {
		return s
	}
	return 1
}

// RecordEvaluation feeds one post-training evaluation score. A full
// window at or above the progression floor advances the stage.
func (c *Curriculum) RecordEvaluation(at types.ArtifactType, score float64) {
	at = at.Normalize()
	c.mu.Lock()
	defer c.mu.Unlock()

	scores := append(c.recent[at], score)
	if len(scores) > c.window {
		scores = scores[len(scores)-c.window:]
	}
	c.recent[at] = scores

	if len(scores) < c.window {
		return
	}
	for _, s := range scores {
		if s < c.advance {
			return
		}
	}
	stage := c.stageLocked(at)
	if stage >= maxStage {
		return
	}
	c.stages[at] = stage + 1
	c.recent[at] = nil
	logging.Training("curriculum for %s advanced to stage %d", at, stage+1)
}

// Compose draws up to target examples following the stage's band mix.
// Shortfalls in one band backfill from easier bands first, then harder.
func (c *Curriculum) Compose(at types.ArtifactType, examples []types.TrainingExample, target int) []types.TrainingExample {
	if target <= 0 || len(examples) == 0 {
		return nil
	}
	if target > len(examples) {
		target = len(examples)
	}

	byBand := map[string][]types.TrainingExample{}
	for _, ex := range examples {
		band := Band(ex.Difficulty)
		byBand[band] = append(byBand[band], ex)
	}
	// Highest quality first within each band.
	for _, band := range byBand {
		sort.SliceStable(band, func(i, j int) bool { return band[i].QualityScore > band[j].QualityScore })
	}

	mix := stageMix[c.StageFor(at)]
	wants := [3]int{
		int(float64(target) * mix[0]),
		int(float64(target) * mix[1]),
		int(float64(target) * mix[2]),
	}
	for sum := wants[0] + wants[1] + wants[2]; sum < target; sum++ {
		wants[0]++ // rounding remainder goes to the easiest band
	}

	order := []string{BandEasy, BandMedium, BandHard}
	var out []types.TrainingExample
	for i, band := range order {
		take := wants[i]
		if take > len(byBand[band]) {
			take = len(byBand[band])
		}
		out = append(out, byBand[band][:take]...)
		byBand[band] = byBand[band][take:]
	}

	// Backfill from whatever remains, easy bands first.
	for _, band := range order {
		for len(out) < target && len(byBand[band]) > 0 {
			out = append(out, byBand[band][0])
			byBand[band] = byBand[band][1:]
		}
	}
	return out
}
