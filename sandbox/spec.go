package sandbox

import (
	"fmt"
	"slices"
	"sort"
	"unicode/utf8"

	"github.com/isdmx/coderunner/config"
)

// Messages returned to callers for rejected requests
const (
	MsgInvalidCode         = "Invalid or too long code"
	MsgUnsupportedLanguage = "Unsupported language"
)

// SpecBuilder maps a requested language to an image and an argv entrypoint
type SpecBuilder struct {
	languages map[Language]config.Language
	aliases   map[string]Language
	limits    ResourceLimits
}

// NewSpecBuilder creates a SpecBuilder from a language table
func NewSpecBuilder(languages map[string]config.Language, limits ResourceLimits) (*SpecBuilder, error) {
	if len(languages) == 0 {
		return nil, fmt.Errorf("no languages configured")
	}

	b := &SpecBuilder{
		languages: make(map[Language]config.Language, len(languages)),
		aliases:   make(map[string]Language),
		limits:    limits,
	}

	for name, lang := range languages {
		if lang.Image == "" || len(lang.Command) == 0 {
			return nil, fmt.Errorf("language %s needs an image and a command", name)
		}
		b.languages[Language(name)] = lang
		b.aliases[name] = Language(name)
		for _, alias := range lang.Aliases {
			b.aliases[alias] = Language(name)
		}
	}

	return b, nil
}

// NewSpecBuilderFromConfig creates a SpecBuilder from the application configuration
func NewSpecBuilderFromConfig(cfg *config.Config) (*SpecBuilder, error) {
	return NewSpecBuilder(cfg.Languages, ResourceLimits{
		CPU:    cfg.Sandbox.CPULimit,
		Memory: cfg.Sandbox.MemoryLimit,
	})
}

// Resolve returns the canonical language for a name or alias
func (b *SpecBuilder) Resolve(name string) (Language, bool) {
	lang, ok := b.aliases[name]
	return lang, ok
}

// Languages returns the accepted language names and aliases, sorted
func (b *SpecBuilder) Languages() []string {
	names := make([]string, 0, len(b.aliases))
	for name := range b.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a request before any backend interaction
func (b *SpecBuilder) Validate(req SandboxRequest, maxCodeLength int) error {
	if utf8.RuneCountInString(req.Code) > maxCodeLength {
		return &ValidationError{Message: MsgInvalidCode}
	}
	if _, ok := b.Resolve(req.Language); !ok {
		return &ValidationError{
			Message: MsgUnsupportedLanguage,
			Err:     fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.Language),
		}
	}
	return nil
}

// Build derives the SandboxSpec for language. The code becomes the final
// argv element and is never interpolated into a shell string.
func (b *SpecBuilder) Build(language, code string) (SandboxSpec, error) {
	lang, ok := b.Resolve(language)
	if !ok {
		return SandboxSpec{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	entry := b.languages[lang]
	entrypoint := slices.Clone(entry.Command)
	entrypoint = append(entrypoint, code)

	return SandboxSpec{
		Language:   lang,
		Image:      entry.Image,
		Entrypoint: entrypoint,
		Limits:     b.limits,
	}, nil
}
