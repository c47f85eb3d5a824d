package shader

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// placeholderRegex matches ${NAME} specialisation placeholders.
var placeholderRegex = regexp.MustCompile(`\$\{(\w+)\}`)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	constants map[string]string
}

// PreProcessor specialises WGSL source by substituting ${NAME} placeholders. It plays the
// role of pipeline specialisation constants: a cascade count or sample count is baked into
// the program text before compilation.
type PreProcessor interface {
	// Process replaces every ${NAME} placeholder with its constant.
	//
	// Parameters:
	//   - source: the raw WGSL source code
	//
	// Returns:
	//   - string: the specialised source
	//   - error: an error naming every placeholder without a constant
	Process(source string) (string, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor for a set of constants. A nil map is allowed.
//
// Parameters:
//   - constants: placeholder names to replacement text
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(constants map[string]string) PreProcessor {
	return &preProcessor{constants: constants}
}

func (p *preProcessor) Process(source string) (string, error) {
	var missing []string
	out := placeholderRegex.ReplaceAllStringFunc(source, func(match string) string {
		name := match[2 : len(match)-1]
		v, ok := p.constants[name]
		if !ok {
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			return match
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
