// Package coverage tracks code-usage coverage for one monitored page: which
// byte ranges of loaded scripts executed and which stylesheet byte ranges were
// applied, collected over a DevTools instrumentation channel.
package coverage

// Range is a half-open [Start, End) span of covered bytes in a resource.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entry pairs a resource's full text with its disjoint covered ranges.
// Ranges are sorted ascending by start, mutually non-overlapping, and each
// longer than one byte.
type Entry struct {
	URL    string  `json:"url"`
	Text   string  `json:"text"`
	Ranges []Range `json:"ranges"`
}

// rawRange is one usage span as reported by the instrumentation layer. For
// scripts Count is the call count of a function range; for stylesheets it is
// 1 when the rule was applied. Only its sign matters downstream.
type rawRange struct {
	Start int
	End   int
	Count int
}

// ScriptOptions configures script coverage collection.
type ScriptOptions struct {
	// ResetOnNavigation discards registered scripts when the page's execution
	// contexts are cleared.
	ResetOnNavigation bool

	// ReportAnonymous includes scripts that have no URL, under a synthesized
	// placeholder URL embedding the script id.
	ReportAnonymous bool
}

// DefaultScriptOptions returns the recommended script coverage defaults.
func DefaultScriptOptions() ScriptOptions {
	return ScriptOptions{ResetOnNavigation: true}
}

// StyleOptions configures stylesheet coverage collection. Stylesheets without
// a source URL are always excluded; there is no anonymous mode.
type StyleOptions struct {
	ResetOnNavigation bool
}

// DefaultStyleOptions returns the recommended style coverage defaults.
func DefaultStyleOptions() StyleOptions {
	return StyleOptions{ResetOnNavigation: true}
}

// EvaluationScriptURL is the reserved URL identifying scripts injected by the
// controlling tooling itself. Such scripts never appear in coverage output.
const EvaluationScriptURL = "pagecov://evaluation-script"
