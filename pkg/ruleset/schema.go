package ruleset

// bundleSchema validates rule bundles before any rule is compiled. Loading
// fails closed: one malformed rule rejects the whole bundle.
const bundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "rules"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "category", "severity", "languages"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "category": {
            "enum": [
              "disclosure-required",
              "phrase-forbidden",
              "pattern-forbidden",
              "predicate",
              "semantic"
            ]
          },
          "severity": {"enum": ["Info", "Warning", "Violation", "Critical"]},
          "pattern": {"type": "string"},
          "languages": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 2}
          },
          "remediation": {"type": "string"},
          "module_path": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
