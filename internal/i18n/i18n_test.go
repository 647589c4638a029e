package i18n

import (
	"context"
	"testing"

	"golang.org/x/text/language"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		tag  language.Tag
		key  string
		args []any
		want string
	}{
		{language.Polish, DefaultRejection, nil, "Nie spełnia wymagań"},
		{language.English, DefaultRejection, nil, "Does not meet the requirements"},
		{language.Polish, WeakPassword, []any{6}, "Hasło musi mieć co najmniej 6 znaków."},
		{language.English, ApprovedBody, []any{"Recykling", 15}, "Recykling: +15 points"},
	}
	for _, tt := range tests {
		if got := T(tt.tag, tt.key, tt.args...); got != tt.want {
			t.Errorf("T(%v, %q) = %q, want %q", tt.tag, tt.key, got, tt.want)
		}
	}
}

func TestEveryMessageTranslated(t *testing.T) {
	for key, text := range polish {
		if text == "" {
			t.Errorf("empty translation for %q", key)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"", language.Polish},
		{"en-US,en;q=0.9", language.English},
		{"pl-PL,pl;q=0.9,en;q=0.8", language.Polish},
		{"de-DE", language.Polish},
		{"%%%", language.Polish},
	}
	for _, tt := range tests {
		if got := Match(tt.header, language.Polish); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	if got := Parse("en"); got != language.English {
		t.Errorf("Parse(en) = %v", got)
	}
	if got := Parse("xx-invalid-!"); got != language.Polish {
		t.Errorf("Parse(invalid) = %v, want pl", got)
	}
}

func TestLanguageContext(t *testing.T) {
	if got := FromContext(context.Background()); got != language.Polish {
		t.Errorf("default = %v, want pl", got)
	}
	ctx := WithLanguage(context.Background(), language.English)
	if got := FromContext(ctx); got != language.English {
		t.Errorf("stored = %v, want en", got)
	}
}
