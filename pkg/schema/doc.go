// Package schema provides a type-safe validation system for event payloads
// and other structured data.
//
// It defines a simple type system with built-in types (string, int, float,
// bool, any) and support for slices, maps and custom validators. Schemas map
// field names to types, enabling runtime validation of the payloads a
// program receives.
//
// Basic usage:
//
//	expects := schema.Schema{
//	    "name":    schema.String(),
//	    "retries": schema.Int(),
//	    "tags":    schema.Slice(schema.String()),
//	}
//
//	payload := map[string]any{
//	    "name":    "alpha",
//	    "retries": 3,
//	    "tags":    []string{"prod", "critical"},
//	}
//
//	if err := schema.Validate(expects, payload); err != nil {
//	    // Handle validation errors
//	}
//
// Schemas can be created programmatically or parsed from type strings, the
// form used by scripted programs:
//
//	expects, err := schema.ParseTypeMap(map[string]string{
//	    "name":    "string",
//	    "retries": "int",
//	    "tags":    "[string]",
//	})
//
// Custom validators can be registered for domain-specific validation:
//
//	positive := schema.Custom("positive_int", func(v any) error {
//	    i, ok := v.(int)
//	    if !ok {
//	        return fmt.Errorf("expected int")
//	    }
//	    if i <= 0 {
//	        return fmt.Errorf("must be positive")
//	    }
//	    return nil
//	})
package schema
