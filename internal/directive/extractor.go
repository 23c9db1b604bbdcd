// Package directive finds the generation directive embedded in rendered message markup.
package directive

import (
	"fmt"
	"strings"
	"time"

	"inline-media-backend/internal/model"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single pattern evaluation. Patterns come from user settings.
const MatchTimeout = 2 * time.Second

// Mode selects how capture groups are interpreted.
type Mode int

const (
	// Legacy expects one group: the prompt.
	Legacy Mode = iota
	// Chained expects three groups: prompt, generation type, dialogue.
	Chained
)

// Match is one located directive.
type Match struct {
	GenType  model.GenType
	Prompt   string
	Dialogue string
	// FullMatch is the exact matched substring of the markup.
	FullMatch string
}

// ConfigurationError reports an unusable directive pattern.
type ConfigurationError struct {
	Pattern string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid directive pattern %q: %v", e.Pattern, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Extractor evaluates one pattern in one mode.
type Extractor struct {
	Pattern string
	Mode    Mode
}

func New(pattern string, mode Mode) *Extractor {
	return &Extractor{Pattern: pattern, Mode: mode}
}

// Extract returns the first directive in markup, or nil when there is none or the
// captured groups are empty.
func (e *Extractor) Extract(markup string) (*Match, error) {
	re, err := regexp2.Compile(e.Pattern, regexp2.IgnoreCase|regexp2.Singleline)
	if err != nil {
		return nil, &ConfigurationError{Pattern: e.Pattern, Err: err}
	}
	re.MatchTimeout = MatchTimeout

	m, err := re.FindStringMatch(markup)
	if err != nil {
		return nil, &ConfigurationError{Pattern: e.Pattern, Err: err}
	}
	if m == nil {
		return nil, nil
	}

	group := func(i int) string {
		g := m.GroupByNumber(i)
		if g == nil {
			return ""
		}
		return g.String()
	}

	switch e.Mode {
	case Chained:
		prompt := strings.TrimSpace(group(1))
		genType := strings.TrimSpace(group(2))
		dialogue := strings.TrimSpace(group(3))
		if prompt == "" || genType == "" || dialogue == "" {
			return nil, nil
		}
		return &Match{
			GenType:   model.ParseGenType(genType),
			Prompt:    prompt,
			Dialogue:  dialogue,
			FullMatch: m.String(),
		}, nil
	default:
		raw := group(1)
		if raw == "" {
			return nil, nil
		}
		return &Match{
			GenType:   model.GenSingle,
			Prompt:    strings.TrimSpace(raw),
			FullMatch: m.String(),
		}, nil
	}
}
