package capability

// CallPath tells the invoker which endpoint shape to use.
type CallPath int

const (
	PathPlain CallPath = iota
	PathJSONMode
	PathSchemaLegacy
	PathSchemaBeta
)

func (p CallPath) String() string {
	switch p {
	case PathJSONMode:
		return "json_mode"
	case PathSchemaLegacy:
		return "schema_legacy"
	case PathSchemaBeta:
		return "schema_beta"
	default:
		return "plain"
	}
}

func (p CallPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// strategy is one step in the structured-output fallback chain.
type strategy struct {
	path   CallPath
	viable func(caps Capabilities, o adaptOptions) bool
	apply  func(params Parameters, d Directive)
}

// structuredChain is ordered by preference. JSON mode is never part of it.
var structuredChain = []strategy{
	{
		path: PathSchemaBeta,
		viable: func(caps Capabilities, o adaptOptions) bool {
			return caps.StructuredOutput && o.betaParse
		},
		apply: func(params Parameters, _ Directive) {
			// the schema travels on Request.Format
			delete(params, ParamResponseFormat)
		},
	},
	{
		path: PathSchemaLegacy,
		viable: func(caps Capabilities, _ adaptOptions) bool {
			return caps.StructuredOutput
		},
		apply: func(params Parameters, d Directive) {
			params[ParamResponseFormat] = d.legacyFormat(true)
		},
	},
}

// selectStrategy returns the first viable strategy strictly after the given
// path, or from the start of the chain when after is PathPlain.
func selectStrategy(caps Capabilities, o adaptOptions, after CallPath) (strategy, bool) {
	start := 0
	if after != PathPlain {
		start = len(structuredChain)
		for i, s := range structuredChain {
			if s.path == after {
				start = i + 1
				break
			}
		}
	}

	for _, s := range structuredChain[start:] {
		if s.viable(caps, o) {
			return s, true
		}
	}
	return strategy{}, false
}
