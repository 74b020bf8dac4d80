package schema

import "sort"

// JSON schemas sent with the generation request. Bounds mirror the validator
// tags on the course types so the provider filters first and Syllabus/Content
// enforce the same contract afterwards.

func str(minLen, maxLen int, description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"minLength":   minLen,
		"maxLength":   maxLen,
		"description": description,
	}
}

func strList(minItems, maxItems int, description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"minItems":    minItems,
		"maxItems":    maxItems,
		"description": description,
	}
}

// nullable marks an optional field. Strict structured output requires every
// property to be listed in required, so optional ones accept null instead.
func nullable(prop map[string]any) map[string]any {
	prop["type"] = []any{prop["type"], "null"}
	return prop
}

// object lists every property as required and forbids extra keys.
func object(props map[string]any) map[string]any {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	req := make([]any, 0, len(keys))
	for _, k := range keys {
		req = append(req, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             req,
		"additionalProperties": false,
	}
}

// SyllabusJSONSchema returns the syllabus schema whose module and topic
// cardinality equals the depth structure.
func SyllabusJSONSchema(st Structure) map[string]any {
	topic := object(map[string]any{
		"summary":  str(10, 200, "One or two sentences naming what the topic teaches"),
		"keywords": strList(3, 10, "Key terms introduced by the topic"),
		"content":  str(100, 2000, "Seed markdown introducing the topic"),
	})

	module := object(map[string]any{
		"summary": str(20, 300, "What the module covers and why it matters"),
		"topics": map[string]any{
			"type":     "array",
			"items":    topic,
			"minItems": st.MinTopics,
			"maxItems": st.MaxTopics,
		},
	})

	return object(map[string]any{
		"modules": map[string]any{
			"type":     "array",
			"items":    module,
			"minItems": st.MinModules,
			"maxItems": st.MaxModules,
		},
		"keywords": strList(5, 20, "Course-level keywords"),
	})
}

func citationJSONSchema() map[string]any {
	return object(map[string]any{
		"id": map[string]any{"type": "string"},
		"type": map[string]any{
			"type": "string",
			"enum": []any{"academic", "web", "book", "article", "documentation"},
		},
		"title":       map[string]any{"type": "string"},
		"authors":     nullable(map[string]any{"type": "array", "items": map[string]any{"type": "string"}}),
		"url":         nullable(map[string]any{"type": "string"}),
		"publisher":   nullable(map[string]any{"type": "string"}),
		"doi":         nullable(map[string]any{"type": "string"}),
		"date":        nullable(map[string]any{"type": "string"}),
		"access_date": nullable(map[string]any{"type": "string", "description": "YYYY-MM-DD"}),
		"relevance":   map[string]any{"type": "string", "description": "Why this source supports the content"},
		"excerpt":     nullable(map[string]any{"type": "string"}),
	})
}

func ContentJSONSchema() map[string]any {
	return object(map[string]any{
		"title":       str(10, 200, "Lesson title"),
		"description": nullable(str(20, 500, "Short description shown in the topic list")),
		"content":     str(500, 8000, "Lesson body in markdown"),
		"citations": map[string]any{
			"type":     "array",
			"items":    citationJSONSchema(),
			"minItems": 3,
			"maxItems": 15,
		},
	})
}
