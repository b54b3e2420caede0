package moderation

import "testing"

func TestModerator_IsSpam(t *testing.T) {
	m := NewModerator()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean", "hey, how's your day going?", false},
		{"shouting short", "HI", false}, // len <= 10, ratio rule doesn't apply
		{"shouting + char flood", "THIS MESSAGE IS SOOOOOOO LOUD", true},
		{"char flood + punctuation flood", "heyyyyyy there!!!", true},
		{"char flood + hype word", "sooooo limited time", true},
		{"many urls", "http://a.com http://b.com http://c.com http://d.com", true},
		{"single hype word only", "this is a limited offer", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsSpam(tt.text); got != tt.want {
				t.Errorf("IsSpam(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestModerator_Check_Severity(t *testing.T) {
	m := NewModerator()

	tests := []struct {
		name string
		text string
		want Severity
	}{
		{"clean", "what's your favorite movie?", SeverityClean},
		{"blocked slur", "you are a nigger", SeverityBlocked},
		{"unmatched leetspeak stays clean", "you are a n1663r placeholder", SeverityClean}, // not a real token match, sanity check stays clean
		{"blocked phrase", "just go kill yourself", SeverityBlocked},
		{"blocked violent threat", "i am gonna kill you tonight", SeverityBlocked},
		{"blocked multiple urls", "http://a.com http://b.com http://c.com", SeverityBlocked},
		{"blocked char flood", "aaaaaaaa", SeverityBlocked},
		{"warning term", "stop being an idiot", SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Check(tt.text)
			if got.Severity != tt.want {
				t.Errorf("Check(%q).Severity = %v, want %v (reason=%s)", tt.text, got.Severity, tt.want, got.Reason)
			}
		})
	}
}

func TestModerator_Mask_PreservesLength(t *testing.T) {
	m := NewModerator()

	texts := []string{
		"stop being an idiot",
		"you are such a loser and a jerk",
		"perfectly clean sentence",
	}

	for _, text := range texts {
		masked := m.Mask(text)
		if len([]rune(masked)) != len([]rune(text)) {
			t.Errorf("Mask(%q) length = %d, want %d", text, len([]rune(masked)), len([]rune(text)))
		}
	}
}

func TestModerator_Mask_RedactsWarningTerm(t *testing.T) {
	m := NewModerator()
	masked := m.Mask("you are an idiot")
	if masked == "you are an idiot" {
		t.Fatal("expected warning term to be masked")
	}
	want := "you are an *****"
	if masked != want {
		t.Errorf("Mask = %q, want %q", masked, want)
	}
}

func TestModerator_Mask_CleanUnchanged(t *testing.T) {
	m := NewModerator()
	text := "nothing wrong with this one"
	if got := m.Mask(text); got != text {
		t.Errorf("Mask(%q) = %q, want unchanged", text, got)
	}
}
