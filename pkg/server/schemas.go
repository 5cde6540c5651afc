package server

// Request body schemas, keyed by name.
const (
	schemaAction   = "action"
	schemaKey      = "key"
	schemaCheckout = "checkout"
	schemaInvoke   = "invoke"
)

var schemaSources = map[string]string{
	schemaAction: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["op"],
  "additionalProperties": false,
  "properties": {
    "op": {
      "enum": [
        "setActiveWorkflow", "advance", "approveWire", "setAvatar",
        "updateSettings", "setNarration", "setIntelTab", "dismissAttack",
        "dismissCompletion", "chooseMode", "reset", "startAutoplay", "stopAutoplay"
      ]
    },
    "workflow": {"type": "string", "maxLength": 64},
    "avatar": {"type": "string", "maxLength": 32},
    "tab": {"type": "string", "maxLength": 32},
    "mode": {"type": "string", "maxLength": 32},
    "text": {"type": "string", "maxLength": 2000},
    "settings": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "seed": {"type": "integer"},
        "frozenTime": {"type": "boolean"},
        "connectorMode": {"type": "string"},
        "debugOverlay": {"type": "boolean"},
        "shadowMode": {"type": "boolean"}
      }
    }
  },
  "allOf": [
    {"if": {"properties": {"op": {"const": "advance"}}}, "then": {"required": ["workflow"]}},
    {"if": {"properties": {"op": {"const": "setAvatar"}}}, "then": {"required": ["avatar"]}},
    {"if": {"properties": {"op": {"const": "updateSettings"}}}, "then": {"required": ["settings"]}},
    {"if": {"properties": {"op": {"const": "setNarration"}}}, "then": {"required": ["text"]}},
    {"if": {"properties": {"op": {"const": "setIntelTab"}}}, "then": {"required": ["tab"]}},
    {"if": {"properties": {"op": {"const": "chooseMode"}}}, "then": {"required": ["mode"]}}
  ]
}`,
	schemaKey: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["key"],
  "additionalProperties": false,
  "properties": {
    "key": {"type": "string", "minLength": 1, "maxLength": 16},
    "inTextInput": {"type": "boolean"}
  }
}`,
	schemaCheckout: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tier", "amountCents", "email"],
  "additionalProperties": false,
  "properties": {
    "tier": {"type": "string", "maxLength": 64},
    "amountCents": {"type": "integer", "minimum": 1},
    "email": {"type": "string", "minLength": 3, "maxLength": 254}
  }
}`,
	schemaInvoke: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object"
}`,
}
