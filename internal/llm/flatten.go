package llm

import (
	"fmt"
	"strings"
)

// FlattenContent reduces any model content shape to a single plain
// string. Providers are inconsistent: content may arrive as a string,
// as a list of content fragments, or as a single fragment object with
// a "text" field. Every known shape maps explicitly; anything else is
// coerced with fmt.Sprint so the mapping is total.
func FlattenContent(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		parts := make([]string, 0, len(c))
		for _, item := range c {
			if s := FlattenContent(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			return text
		}
		if inner, ok := c["content"]; ok {
			return FlattenContent(inner)
		}
		return fmt.Sprint(c)
	default:
		return fmt.Sprint(c)
	}
}
