package capability

import (
	"maps"
	"sort"

	"go.uber.org/zap"
)

// Parameters is a caller-supplied request parameter set keyed by wire name.
type Parameters map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty set.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	maps.Copy(out, p)
	return out
}

// Request is the outcome of adapting caller parameters to a model.
type Request struct {
	Model    string     `json:"model"`
	Provider Provider   `json:"provider"`
	Params   Parameters `json:"params"`
	Path     CallPath   `json:"call_path"`
	Format   Directive  `json:"format"`
	Dropped  []string   `json:"dropped"`
}

type adaptOptions struct {
	betaParse bool
}

type AdaptOption func(*adaptOptions)

// WithoutBetaParse skips the structured parse path and emits a json_schema
// response_format instead.
func WithoutBetaParse() AdaptOption {
	return func(o *adaptOptions) {
		o.betaParse = false
	}
}

// WithBetaParse toggles the structured parse path.
func WithBetaParse(enabled bool) AdaptOption {
	return func(o *adaptOptions) {
		o.betaParse = enabled
	}
}

// Resolver answers capability questions and adapts requests. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	table  *Table
	logger *zap.Logger
}

func NewResolver(table *Table, logger *zap.Logger) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{table: table, logger: logger}
}

// Capabilities returns the record for model or an *UnknownModelError.
func (r *Resolver) Capabilities(model string) (Capabilities, error) {
	c, ok := r.table.Lookup(model)
	if !ok {
		return Capabilities{}, &UnknownModelError{Model: model}
	}
	return c, nil
}

// Models lists every known model.
func (r *Resolver) Models() []Capabilities {
	return r.table.All()
}

func (r *Resolver) ResolveProvider(model string) (Provider, error) {
	c, err := r.Capabilities(model)
	if err != nil {
		return "", err
	}
	return c.Provider, nil
}

func (r *Resolver) TokenParamName(model string) (string, error) {
	c, err := r.Capabilities(model)
	if err != nil {
		return "", err
	}
	return c.TokenParam(), nil
}

// UnsupportedParameters returns the sorted parameter names model rejects.
// Unknown models reject nothing.
func (r *Resolver) UnsupportedParameters(model string) []string {
	c, ok := r.table.Lookup(model)
	if !ok {
		return []string{}
	}
	return c.Unsupported()
}

// SupportsStructuredOutput is false for unknown models.
func (r *Resolver) SupportsStructuredOutput(model string) bool {
	c, ok := r.table.Lookup(model)
	return ok && c.StructuredOutput
}

// Adapt rewrites params for model and picks the call path for directive.
// params is never modified. The same inputs always produce the same output,
// and adapting an adapted request again changes nothing.
func (r *Resolver) Adapt(model string, params Parameters, d Directive, opts ...AdaptOption) (*Request, error) {
	caps, err := r.Capabilities(model)
	if err != nil {
		return nil, err
	}

	o := adaptOptions{betaParse: true}
	for _, opt := range opts {
		opt(&o)
	}

	out := params.Clone()
	r.renameTokenParam(caps, out)
	dropped := r.dropUnsupported(caps, out)

	req := &Request{
		Model:    model,
		Provider: caps.Provider,
		Params:   out,
		Format:   d,
		Dropped:  dropped,
	}

	switch d.Kind {
	case FormatStructured:
		s, ok := selectStrategy(caps, o, PathPlain)
		if !ok {
			return nil, &UnsupportedFeatureError{Model: model, Feature: FeatureStructuredOutput}
		}
		s.apply(out, d)
		req.Path = s.path

	case FormatJSONSchema:
		if !caps.StructuredOutput {
			return nil, &UnsupportedFeatureError{Model: model, Feature: FeatureStructuredOutput}
		}
		out[ParamResponseFormat] = d.legacyFormat(d.Strict)
		req.Path = PathSchemaLegacy

	case FormatJSONObject:
		out[ParamResponseFormat] = jsonObjectFormat()
		req.Path = PathJSONMode

	default:
		delete(out, ParamResponseFormat)
		req.Format = None()
		req.Path = PathPlain
	}

	return req, nil
}

// Fallback returns req moved to the next viable strategy in the structured
// chain. ok is false when req is not on a schema path or nothing is left.
func (r *Resolver) Fallback(req *Request) (*Request, bool) {
	if req == nil || req.Format.Kind != FormatStructured {
		return nil, false
	}

	caps, ok := r.table.Lookup(req.Model)
	if !ok {
		return nil, false
	}

	s, ok := selectStrategy(caps, adaptOptions{}, req.Path)
	if !ok {
		return nil, false
	}

	next := *req
	next.Params = req.Params.Clone()
	next.Dropped = append([]string(nil), req.Dropped...)
	s.apply(next.Params, next.Format)
	next.Path = s.path

	r.logger.Warn("Falling back to next structured output strategy",
		zap.String("model", req.Model),
		zap.Stringer("from", req.Path),
		zap.Stringer("to", next.Path),
	)

	return &next, true
}

func (r *Resolver) renameTokenParam(caps Capabilities, params Parameters) {
	target := caps.TokenParam()
	other := ParamMaxTokens
	if target == ParamMaxTokens {
		other = ParamMaxCompletionTokens
	}

	v, ok := params[other]
	if !ok {
		return
	}
	delete(params, other)

	if _, exists := params[target]; exists {
		r.logger.Debug("Both token limits supplied, keeping the model's own",
			zap.String("model", caps.Model),
			zap.String("kept", target),
			zap.String("discarded", other),
		)
		return
	}
	params[target] = v
}

func (r *Resolver) dropUnsupported(caps Capabilities, params Parameters) []string {
	dropped := []string{}
	for name := range params {
		if caps.rejects(name) {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)

	for _, name := range dropped {
		delete(params, name)
		r.logger.Warn("Dropping parameter not supported by model",
			zap.String("parameter", name),
			zap.String("model", caps.Model),
		)
	}
	return dropped
}
