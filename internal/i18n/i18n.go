// Package i18n holds the user-visible messages in Polish and English.
// Message keys are the English text.
package i18n

import (
	"context"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	DefaultRejection     = "Does not meet the requirements"
	RequiresRecentLogin  = "Please sign in again to delete your account."
	InvalidCredentials   = "Invalid email or password."
	InvalidEmail         = "Invalid email address."
	WeakPassword         = "Password must be at least %d characters."
	EmailTaken           = "This email is already registered."
	SignInRequired       = "Please sign in."
	FederatedUnavailable = "Federated sign-in is not available."
	FederatedFailed      = "Sign-in failed. Please try again."
	CategoryRequired     = "Please choose a category."
	GuestCannotSubmit    = "Guests cannot submit activities."
	TeacherOnly          = "Only teachers can review activities."
	NegativePoints       = "Points cannot be negative."
	AlreadyReviewed      = "This activity has already been reviewed."
	NotFound             = "Not found."
	InvalidPhoto         = "The photo must be an image of at most 5 MB."
	InvalidRequest       = "Invalid request."
	TooManyRequests      = "Too many requests. Please wait a moment."
	Internal             = "Something went wrong. Please try again."

	ApprovedTitle = "Activity approved"
	ApprovedBody  = "%s: +%d points"
	RejectedTitle = "Activity rejected"
	RejectedBody  = "%s: %s"
	BadgeTitle    = "New badge: %s"
	BadgeBody     = "Congratulations! You now have %d points."
)

var polish = map[string]string{
	DefaultRejection:     "Nie spełnia wymagań",
	RequiresRecentLogin:  "Aby usunąć konto, zaloguj się ponownie.",
	InvalidCredentials:   "Nieprawidłowy email lub hasło.",
	InvalidEmail:         "Nieprawidłowy adres email.",
	WeakPassword:         "Hasło musi mieć co najmniej %d znaków.",
	EmailTaken:           "Ten adres email jest już zarejestrowany.",
	SignInRequired:       "Zaloguj się.",
	FederatedUnavailable: "Logowanie przez Google jest niedostępne.",
	FederatedFailed:      "Logowanie nie powiodło się. Spróbuj ponownie.",
	CategoryRequired:     "Wybierz kategorię.",
	GuestCannotSubmit:    "Goście nie mogą zgłaszać aktywności.",
	TeacherOnly:          "Tylko nauczyciele mogą oceniać aktywności.",
	NegativePoints:       "Liczba punktów nie może być ujemna.",
	AlreadyReviewed:      "Ta aktywność została już oceniona.",
	NotFound:             "Nie znaleziono.",
	InvalidPhoto:         "Zdjęcie musi być obrazem o rozmiarze do 5 MB.",
	InvalidRequest:       "Nieprawidłowe żądanie.",
	TooManyRequests:      "Zbyt wiele prób. Odczekaj chwilę.",
	Internal:             "Wystąpił błąd. Spróbuj ponownie.",

	ApprovedTitle: "Aktywność zatwierdzona",
	ApprovedBody:  "%s: +%d pkt",
	RejectedTitle: "Aktywność odrzucona",
	RejectedBody:  "%s: %s",
	BadgeTitle:    "Nowa odznaka: %s",
	BadgeBody:     "Gratulacje! Masz już %d punktów.",
}

var (
	supported = []language.Tag{language.Polish, language.English}
	matcher   = language.NewMatcher(supported)
	messages  = build()
)

func build() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.Polish))
	for key, text := range polish {
		b.SetString(language.Polish, key, text)
		b.SetString(language.English, key, key)
	}
	return b
}

// Match picks the best supported language for an Accept-Language header,
// falling back to def when the header is empty or unparsable.
func Match(acceptLanguage string, def language.Tag) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return def
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return def
	}
	return supported[idx]
}

// Parse returns the supported language for a configured locale string.
func Parse(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Polish
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return language.Polish
	}
	return supported[idx]
}

func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(messages))
}

// T formats key in the given language.
func T(tag language.Tag, key string, args ...any) string {
	return Printer(tag).Sprintf(key, args...)
}

type langKey struct{}

// WithLanguage stores the language negotiated for a request.
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, langKey{}, tag)
}

// FromContext returns the request language, Polish when none was stored.
func FromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(langKey{}).(language.Tag); ok {
		return tag
	}
	return language.Polish
}
