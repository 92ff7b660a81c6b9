package loam

// ScriptMetadata is the frontmatter of a script document. The fields mirror
// a YAML script file; the markdown body below the frontmatter is free-form
// documentation served by Describe.
// It uses "mapstructure" tags to match standard frontmatter keys.
type ScriptMetadata struct {
	Name    string           `json:"name" mapstructure:"name"`
	OnError string           `json:"on_error,omitempty" mapstructure:"on_error"`
	Steps   []map[string]any `json:"steps" mapstructure:"steps"`
}
