// Package catalog resolves localized message templates by locale and path
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

var ErrMissingMessage = errors.New("missing message")

// Catalog maps a locale and a dotted message path to a template.
// Locales are matched with golang.org/x/text/language, so "en_US" finds "en" messages.
type Catalog struct {
	sync.RWMutex
	fallback language.Tag
	tags     []language.Tag
	matcher  language.Matcher
	messages map[language.Tag]map[string]string
}

func New(defaultLocale string) *Catalog {
	fallback, err := parseLocale(defaultLocale)
	if err != nil {
		logrus.WithError(err).WithField("locale", defaultLocale).Warn("Invalid default locale, using en")
		fallback = language.English
	}
	return &Catalog{
		fallback: fallback,
		messages: make(map[language.Tag]map[string]string),
	}
}

func parseLocale(locale string) (language.Tag, error) {
	return language.Parse(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
}

// Replace swaps every message for the given locale to path to template mappings
func (c *Catalog) Replace(messages map[string]map[string]string) error {
	parsed := make(map[language.Tag]map[string]string, len(messages))
	for locale, paths := range messages {
		tag, err := parseLocale(locale)
		if err != nil {
			return errors.Wrapf(err, "invalid locale %q", locale)
		}
		parsed[tag] = paths
	}

	// the fallback goes first so that it wins when nothing matches
	tags := make([]language.Tag, 0, len(parsed))
	if _, ok := parsed[c.fallback]; ok {
		tags = append(tags, c.fallback)
	}
	var others []language.Tag
	for tag := range parsed {
		if tag != c.fallback {
			others = append(others, tag)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return others[i].String() < others[j].String()
	})
	tags = append(tags, others...)

	c.Lock()
	defer c.Unlock()
	c.messages = parsed
	c.tags = tags
	if len(tags) > 0 {
		c.matcher = language.NewMatcher(tags)
	} else {
		c.matcher = nil
	}
	return nil
}

// Locales returns the loaded locales
func (c *Catalog) Locales() []string {
	c.RLock()
	defer c.RUnlock()
	locales := make([]string, len(c.tags))
	for i, tag := range c.tags {
		locales[i] = tag.String()
	}
	return locales
}

// Lookup returns the template at path for the best matching locale, trying the default
// locale when the matched one lacks the path
func (c *Catalog) Lookup(locale, path string) (string, bool) {
	c.RLock()
	defer c.RUnlock()
	if c.matcher == nil {
		return "", false
	}

	tag := c.fallback
	if requested, err := parseLocale(locale); err == nil {
		_, index, confidence := c.matcher.Match(requested)
		if confidence != language.No {
			tag = c.tags[index]
		}
	}
	if template, ok := c.messages[tag][path]; ok {
		return template, true
	}
	template, ok := c.messages[c.fallback][path]
	return template, ok
}

// Render resolves path for locale and substitutes numeric args and named placeholders
func (c *Catalog) Render(locale, path string, args []string, placeholders []protocol.Placeholder) (string, error) {
	template, ok := c.Lookup(locale, path)
	if !ok {
		return "", errors.Wrapf(ErrMissingMessage, "%s for locale %s", path, locale)
	}
	if len(args) > 0 {
		template = FormatNumeric(template, args)
	}
	if len(placeholders) > 0 {
		template = FormatNamed(template, placeholders)
	}
	return template, nil
}
