package training

import (
	"fmt"
	"strings"

	"artificer/internal/types"
)

// =============================================================================
// DATA AUGMENTATION
// =============================================================================

const (
	defaultAugmentFactor   = 2
	defaultQualityDiscount = 0.95
)

// Augmenter derives synthetic variants from pooled examples. Variants
// rephrase the instruction, rotate the input, or append a comment line
// to the output where the format ignores comments. Quality is
// discounted so originals always rank first.
type Augmenter struct {
	Factor          int
	QualityDiscount float64
}

func NewAugmenter(factor int, discount float64) *Augmenter {
	if factor <= 0 {
		factor = defaultAugmentFactor
	}
	if discount <= 0 || discount > 1 {
		discount = defaultQualityDiscount
	}
	return &Augmenter{Factor: factor, QualityDiscount: discount}
}

// instructionVariants rephrase the canonical instruction. The rotation
// keeps variant sets distinct per source example.
var instructionVariants = []string{
	"Produce a %s artifact based on these meeting notes.",
	"From the notes below, create a %s artifact.",
	"Turn the following meeting notes into a %s artifact.",
	"Using the notes provided, write a %s artifact.",
}

// Augment returns up to (Factor-1) variants per source example, so the
// combined set is roughly Factor times the input.
func (a *Augmenter) Augment(examples []types.TrainingExample) []types.TrainingExample {
	var variants []types.TrainingExample
	for i, ex := range examples {
		for v := 0; v < a.Factor-1; v++ {
			variant := ex
			variant.Source = types.SourceSynthetic
			variant.QualityScore = ex.QualityScore * a.QualityDiscount
			variant.Category = ex.Category
			variant.Hash = ""
			variant.CreatedAt = ex.CreatedAt

			switch (i + v) % 3 {
			case 0:
				tmpl := instructionVariants[(i+v)%len(instructionVariants)]
				variant.Instruction = fmt.Sprintf(tmpl, ex.ArtifactType.Normalize())
			case 1:
				variant.Input = reorderLines(ex.Input)
				if variant.Input == ex.Input {
					tmpl := instructionVariants[(i+v+1)%len(instructionVariants)]
					variant.Instruction = fmt.Sprintf(tmpl, ex.ArtifactType.Normalize())
				}
			default:
				variant.Output = jitterOutput(ex.Output, ex.ArtifactType)
				if variant.Output == ex.Output {
					tmpl := instructionVariants[(i+v+2)%len(instructionVariants)]
					variant.Instruction = fmt.Sprintf(tmpl, ex.ArtifactType.Normalize())
				}
			}
			variant.Hash = ExampleHash(variant)
			if variant.Hash == ex.Hash {
				continue // variation collapsed into the original
			}
			variants = append(variants, variant)
		}
	}
	return variants
}

// outputComments are inert trailing lines for formats whose renderers
// skip comments.
var outputComments = []string{
	"%% generated from meeting notes",
	"%% draft revision",
	"%% review pending",
}

// jitterOutput appends a mermaid comment line to the output. Only
// mermaid dialects qualify; order-sensitive formats like code or HTML
// come back unchanged.
func jitterOutput(output string, at types.ArtifactType) string {
	if !at.Normalize().IsMermaid() || strings.TrimSpace(output) == "" {
		return output
	}
	comment := outputComments[len(output)%len(outputComments)]
	return strings.TrimRight(output, "\n") + "\n" + comment
}

// reorderLines rotates the first line to the end, a cheap context
// variation that preserves content. Inputs under three lines stay
// as-is.
func reorderLines(input string) string {
	lines := strings.Split(input, "\n")
	if len(lines) < 3 {
		return input
	}
	out := append([]string{}, lines[1:]...)
	out = append(out, lines[0])
	return strings.Join(out, "\n")
}
