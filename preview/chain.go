package preview

// RunChain threads a value through chain and returns the last result.
//
// The first callback receives initial[0] when given, nil otherwise; each
// later callback receives the previous result. An empty chain returns the
// initial value.
func RunChain(chain Chain, m *Module, initial ...any) any {
	var result any
	if len(initial) > 0 {
		result = initial[0]
	}
	for _, fn := range chain {
		if fn == nil {
			continue
		}
		result = fn(m, result)
	}
	return result
}
