package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/openai"
)

const (
	FallbackScriptNotes   = "Used fallback script"
	minScriptChars        = 10
	fallbackExcerptRunes  = 500
	promptContentMaxRunes = 1500
)

type ScriptRequest struct {
	OriginalContent string
	LearningStyle   learning.LearningStyle
	Challenges      learning.ChallengeSet
	StudentName     string
	Subject         learning.Subject
	Title           string
}

type ScriptResult struct {
	Success        bool
	TeachingScript string
	Notes          string
	Error          string
}

// ScriptProvider always yields a usable script. Success is false when the
// deterministic fallback was used.
type ScriptProvider interface {
	GenerateScript(ctx context.Context, req ScriptRequest) ScriptResult
}

type scriptProvider struct {
	log *logger.Logger
	llm openai.Client
}

// NewScriptProvider with a nil llm serves the fallback for every request.
func NewScriptProvider(baseLog *logger.Logger, llm openai.Client) ScriptProvider {
	return &scriptProvider{
		log: baseLog.With("service", "ScriptProvider"),
		llm: llm,
	}
}

func (p *scriptProvider) GenerateScript(ctx context.Context, req ScriptRequest) ScriptResult {
	if p.llm == nil {
		return FallbackScript(req, "script generation not configured")
	}
	system, user := teachingPrompt(req)
	text, err := p.llm.GenerateText(ctx, system, user)
	if err != nil {
		p.log.Warn("Script generation failed; using fallback", "title", req.Title, "error", err)
		return FallbackScript(req, err.Error())
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minScriptChars {
		p.log.Warn("Script too short; using fallback", "title", req.Title, "chars", utf8.RuneCountInString(text))
		return FallbackScript(req, "generated script too short")
	}
	return ScriptResult{
		Success:        true,
		TeachingScript: text,
		Notes:          fmt.Sprintf("Generated with %s for %s learner", p.llm.Model(), req.LearningStyle),
	}
}

// FallbackScript greets the student and reads out the start of the material.
func FallbackScript(req ScriptRequest, reason string) ScriptResult {
	name := strings.TrimSpace(req.StudentName)
	if name == "" {
		name = "there"
	}
	excerpt := []rune(strings.TrimSpace(req.OriginalContent))
	if len(excerpt) > fallbackExcerptRunes {
		excerpt = excerpt[:fallbackExcerptRunes]
	}
	return ScriptResult{
		Success:        false,
		TeachingScript: fmt.Sprintf("Hi %s! Let me teach you about %s. %s", name, req.Title, string(excerpt)),
		Notes:          FallbackScriptNotes,
		Error:          reason,
	}
}

var styleGuidance = map[learning.LearningStyle]string{
	learning.LearningStyleVisual:         `Use visual descriptions: "Imagine...", "Picture this...", "Think of..."`,
	learning.LearningStyleAuditory:       "Use sound words and verbal cues. Encourage saying things out loud.",
	learning.LearningStyleKinesthetic:    `Include actions: "Try this...", "Let's move...", "Use your hands..."`,
	learning.LearningStyleReadingWriting: "Encourage taking notes and writing things down.",
}

var challengeGuidance = map[learning.Challenge]string{
	learning.ChallengeDyslexia:    "Use very short sentences of ten words or less. Avoid complex words.",
	learning.ChallengeADHD:        "Break the lesson into tiny chunks with lots of energy.",
	learning.ChallengeAutism:      "Be literal and concrete with a predictable structure.",
	learning.ChallengeDyscalculia: "Explain numbers with everyday objects and go one step at a time.",
	learning.ChallengeDysgraphia:  "Do not ask the student to write long answers; prefer speaking.",
}

func teachingPrompt(req ScriptRequest) (string, string) {
	name := strings.TrimSpace(req.StudentName)
	if name == "" {
		name = "there"
	}
	var needs []string
	for _, tag := range req.Challenges.Strings() {
		if g, ok := challengeGuidance[learning.Challenge(tag)]; ok {
			needs = append(needs, g)
		}
	}
	needsText := "None"
	if len(needs) > 0 {
		needsText = strings.Join(needs, " ")
	}
	style := styleGuidance[req.LearningStyle]
	if style == "" {
		style = "Use clear explanations."
	}
	content := []rune(req.OriginalContent)
	if len(content) > promptContentMaxRunes {
		content = content[:promptContentMaxRunes]
	}

	system := "You are a warm primary school teacher writing the words a video avatar will speak. " +
		"Write only the spoken script, with no stage directions or notes."

	var b strings.Builder
	fmt.Fprintf(&b, "Student: %s (%s learner)\n", name, req.LearningStyle.Label())
	fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	fmt.Fprintf(&b, "Lesson title: %s\n", req.Title)
	fmt.Fprintf(&b, "Learning style guidance: %s\n", style)
	fmt.Fprintf(&b, "Accommodations: %s\n\n", needsText)
	fmt.Fprintf(&b, "Original content:\n%s\n\n", string(content))
	fmt.Fprintf(&b, "Write a 2-3 minute script that starts with \"Hi %s!\", uses short sentences, "+
		"encourages the student and ends with a short summary.", name)
	return system, b.String()
}
