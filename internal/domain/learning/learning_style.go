package learning

import (
	"fmt"
	"strings"
)

type LearningStyle string

const (
	LearningStyleVisual         LearningStyle = "visual"
	LearningStyleAuditory       LearningStyle = "auditory"
	LearningStyleReadingWriting LearningStyle = "reading_writing"
	LearningStyleKinesthetic    LearningStyle = "kinesthetic"
)

var learningStyles = []LearningStyle{
	LearningStyleVisual,
	LearningStyleAuditory,
	LearningStyleReadingWriting,
	LearningStyleKinesthetic,
}

func LearningStyles() []LearningStyle {
	out := make([]LearningStyle, len(learningStyles))
	copy(out, learningStyles)
	return out
}

func ParseLearningStyle(s string) (LearningStyle, error) {
	norm := LearningStyle(strings.ToLower(strings.TrimSpace(s)))
	norm = LearningStyle(strings.ReplaceAll(string(norm), "-", "_"))
	for _, ls := range learningStyles {
		if ls == norm {
			return ls, nil
		}
	}
	return "", fmt.Errorf("unknown learning style %q", s)
}

func (ls LearningStyle) Valid() bool {
	_, err := ParseLearningStyle(string(ls))
	return err == nil
}

// Label is the human form used in prompts and scripts.
func (ls LearningStyle) Label() string {
	switch ls {
	case LearningStyleReadingWriting:
		return "reading/writing"
	default:
		return string(ls)
	}
}
