package convert

// Registry holds initialized converters by media type. It is populated
// once at process start and read-only afterwards.
type Registry struct {
	byType map[MediaType]Converter
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[MediaType]Converter)}
}

func (r *Registry) Register(t MediaType, c Converter) {
	r.byType[t] = c
}

func (r *Registry) Get(t MediaType) (Converter, bool) {
	c, ok := r.byType[t]
	return c, ok
}

// Resolve returns the converter for the pair or an UnsupportedFormatError
// when no converter is registered for t or it cannot produce targetFormat.
func (r *Registry) Resolve(t MediaType, targetFormat string) (Converter, error) {
	c, ok := r.byType[t]
	if !ok || !c.Supports(targetFormat) {
		return nil, &UnsupportedFormatError{Type: t, Format: targetFormat}
	}
	return c, nil
}

func (r *Registry) Types() []MediaType {
	out := make([]MediaType, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	return out
}
