package delivery

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	msgcatalog "golang.org/x/text/message/catalog"
	"golang.org/x/text/unicode/norm"
)

const breakpointTitleKey = "breakpoint.title"

var breakpointTemplates = map[language.Tag]string{
	language.English: "Explore more %s",
	language.Hindi:   "और %s देखें",
	language.Tamil:   "மேலும் %s பாருங்கள்",
	language.Telugu:  "మరిన్ని %s చూడండి",
	language.Bengali: "আরও %s দেখুন",
}

// Localizer renders breakpoint card titles in the client's language.
type Localizer struct {
	supported []language.Tag
	matcher   language.Matcher
	catalog   *msgcatalog.Builder
	fallback  language.Tag
}

func NewLocalizer(defaultLang string) *Localizer {
	fallback, err := language.Parse(defaultLang)
	if err != nil {
		fallback = language.English
	}

	// the fallback goes first so the matcher prefers it on a weak match
	supported := []language.Tag{fallback}
	for tag := range breakpointTemplates {
		if tag != fallback {
			supported = append(supported, tag)
		}
	}

	builder := msgcatalog.NewBuilder(msgcatalog.Fallback(language.English))
	for tag, template := range breakpointTemplates {
		_ = builder.SetString(tag, breakpointTitleKey, template)
	}

	return &Localizer{
		supported: supported,
		matcher:   language.NewMatcher(supported),
		catalog:   builder,
		fallback:  fallback,
	}
}

// Tag resolves a client language string to a supported tag.
func (l *Localizer) Tag(lang string) language.Tag {
	if lang == "" {
		return l.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(tags) == 0 {
		return l.fallback
	}
	_, index, confidence := l.matcher.Match(tags...)
	if confidence == language.No {
		return l.fallback
	}
	return l.supported[index]
}

// BreakpointTitle renders the suggestion title for genre.
func (l *Localizer) BreakpointTitle(lang, genre string) string {
	tag := l.Tag(lang)
	printer := message.NewPrinter(tag, message.Catalog(l.catalog))
	return printer.Sprintf(breakpointTitleKey, displayGenre(tag, genre))
}

func displayGenre(tag language.Tag, genre string) string {
	name := strings.NewReplacer("-", " ", "_", " ").Replace(norm.NFC.String(genre))
	return cases.Title(tag).String(strings.TrimSpace(name))
}
