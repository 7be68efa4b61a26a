// Package speech selects synthesis voices for result lines. The
// synthesizer itself is a platform collaborator; only the language
// mapping and voice picking live here.
package speech

import (
	"strings"
	"sync"
)

// Voice is one available synthesis voice as reported by the platform.
type Voice struct {
	Name string
	Lang string // BCP-47 tag, e.g. "en-US"
}

// Synthesizer speaks one utterance in a given voice. Implementations
// wrap the platform speech API.
type Synthesizer interface {
	Speak(text string, voice *Voice, langTag string) error
	Cancel()
}

// TTSTag maps a result language code to its synthesis language tag.
func TTSTag(lang string) string {
	switch lang {
	case "ja":
		return "ja-JP"
	case "en":
		return "en-US"
	case "zh":
		return "zh-CN"
	case "ko":
		return "ko-KR"
	}
	return "en-US"
}

// Catalog holds the current voice list. Platforms may deliver voices
// late; Refresh replaces the list whenever they change.
type Catalog struct {
	mu     sync.RWMutex
	voices []Voice
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

func (c *Catalog) Refresh(voices []Voice) {
	c.mu.Lock()
	c.voices = append([]Voice(nil), voices...)
	c.mu.Unlock()
}

// Pick prefers an exact language-tag match, then a primary-subtag
// prefix match (so "en" finds "en-US"). Returns nil when nothing fits;
// the caller lets the platform choose a default.
func (c *Catalog) Pick(langTag string) *Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lt := strings.ToLower(langTag)
	for i := range c.voices {
		if strings.ToLower(c.voices[i].Lang) == lt {
			v := c.voices[i]
			return &v
		}
	}
	primary, _, _ := strings.Cut(lt, "-")
	if primary == "" {
		return nil
	}
	for i := range c.voices {
		if strings.HasPrefix(strings.ToLower(c.voices[i].Lang), primary) {
			v := c.voices[i]
			return &v
		}
	}
	return nil
}

// Speak resolves the voice for lang and hands the utterance to the
// synthesizer, cancelling anything still speaking. Empty text is a
// no-op.
func Speak(s Synthesizer, c *Catalog, text, lang string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.Cancel()
	tag := TTSTag(lang)
	return s.Speak(text, c.Pick(tag), tag)
}
