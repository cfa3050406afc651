package learning

import "testing"

func TestChallengeSetIsOrderIndependent(t *testing.T) {
	a := MustChallengeSet("adhd", "Dyslexia")
	b := MustChallengeSet(" dyslexia", "adhd", "adhd")
	if !a.Equal(b) {
		t.Fatalf("Equal: want=true keys=%q,%q", a.Key(), b.Key())
	}
	if a.Key() != "adhd,dyslexia" {
		t.Fatalf("Key: want=%q got=%q", "adhd,dyslexia", a.Key())
	}
}

func TestChallengeSetStrictEquality(t *testing.T) {
	a := MustChallengeSet("dyslexia")
	b := MustChallengeSet("dyslexia", "adhd")
	if a.Equal(b) {
		t.Fatalf("subset must not be equal: %q vs %q", a.Key(), b.Key())
	}
	var empty ChallengeSet
	if empty.Equal(a) || !empty.Equal(MustChallengeSet()) {
		t.Fatalf("empty set only equals empty set")
	}
	if empty.Key() != "" {
		t.Fatalf("empty Key: want=\"\" got=%q", empty.Key())
	}
}

func TestChallengeSetRejectsUnknown(t *testing.T) {
	if _, err := NewChallengeSet("dyslexia", "sleepy"); err == nil {
		t.Fatalf("NewChallengeSet: want error for unknown tag")
	}
}

func TestParseChallengeKeyRoundTrip(t *testing.T) {
	cs := MustChallengeSet("autism", "adhd")
	back, err := ParseChallengeKey(cs.Key())
	if err != nil {
		t.Fatalf("ParseChallengeKey: %v", err)
	}
	if !back.Equal(cs) || !back.Has(ChallengeAutism) || back.Has(ChallengeDyslexia) {
		t.Fatalf("round trip mismatch: %q", back.Key())
	}
}

func TestParseLearningStyle(t *testing.T) {
	got, err := ParseLearningStyle(" Reading-Writing ")
	if err != nil || got != LearningStyleReadingWriting {
		t.Fatalf("ParseLearningStyle: want=%q got=%q err=%v", LearningStyleReadingWriting, got, err)
	}
	if _, err := ParseLearningStyle("telepathic"); err == nil {
		t.Fatalf("ParseLearningStyle: want error")
	}
}

func TestApplyProfileKeepsKeyInSync(t *testing.T) {
	var ac AdaptedContent
	ac.ApplyProfile(LearningStyleVisual, MustChallengeSet("dyslexia", "adhd"))
	if ac.ChallengeKey != "adhd,dyslexia" || len(ac.Challenges) != 2 {
		t.Fatalf("ApplyProfile: key=%q challenges=%v", ac.ChallengeKey, ac.Challenges)
	}
	if ac.HasVideo() {
		t.Fatalf("HasVideo: want=false for pending content")
	}
}

func TestNormalizeSubject(t *testing.T) {
	if NormalizeSubject("Math") != SubjectMath {
		t.Fatalf("NormalizeSubject(Math)")
	}
	if NormalizeSubject("astrology") != SubjectOther {
		t.Fatalf("NormalizeSubject(astrology): want=other")
	}
}

func TestFirstName(t *testing.T) {
	p := StudentProfile{DisplayName: "Ada Lovelace"}
	if p.FirstName() != "Ada" {
		t.Fatalf("FirstName: want=Ada got=%q", p.FirstName())
	}
	if (&StudentProfile{}).FirstName() != "there" {
		t.Fatalf("FirstName empty: want=there")
	}
}
