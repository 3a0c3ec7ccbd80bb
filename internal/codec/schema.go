package codec

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://github.com/MrSnakeDoc/marksync/snapshot.schema.json"

// snapshotSchema describes the stored document: a non-empty array of nodes.
// A node is either a bookmark (non-empty string url) or a folder (children array).
const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "node": {
      "type": "object",
      "properties": {
        "title": { "type": "string" }
      },
      "anyOf": [
        {
          "required": ["url"],
          "properties": { "url": { "type": "string", "minLength": 1 } }
        },
        {
          "required": ["children"],
          "not": { "required": ["url"] },
          "properties": {
            "children": { "type": "array", "items": { "$ref": "#/$defs/node" } }
          }
        }
      ]
    }
  },
  "type": "array",
  "minItems": 1,
  "items": { "$ref": "#/$defs/node" }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(snapshotSchema))
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(err)
	}
	return c.MustCompile(schemaURL)
}
