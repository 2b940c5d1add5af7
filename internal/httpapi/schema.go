package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Request bodies are checked against JSON Schema before decoding, so shape
// problems (unknown fields, wrong types, out-of-enum values) come back as
// one clear validation message instead of a partial decode.

const contactFieldProperties = `
	"name": {"type": "string", "minLength": 1},
	"email": {"type": "string"},
	"phone": {"type": "string"},
	"status": {"type": "string", "enum": ["wait", "queued", "need_to_contact", "contacted", "circle_back", "scheduled", "done", "ghosted", ""]},
	"type": {"type": "string", "enum": ["existing", "2026_new", ""]},
	"group": {"type": "string", "enum": ["other", "fam", "McK", "PEA", "GU", "BP", "MBA", "MVNX", ""]},
	"relationshipType": {"type": "string", "enum": ["friend", "advisor", "potential_client", "colleague", "other", ""]},
	"title": {"type": "string"},
	"company": {"type": "string"},
	"industry": {"type": "string"},
	"location": {"type": "string"},
	"linkedinUrl": {"type": "string"},
	"notes": {"type": "string"},
	"lastContactDate": {"type": "string", "pattern": "^([0-9]{4}-[0-9]{2}-[0-9]{2})?$"},
	"nextFollowupDate": {"type": "string", "pattern": "^([0-9]{4}-[0-9]{2}-[0-9]{2})?$"},
	"followupContext": {"type": "string"}
`

var createContactSchemaJSON = `{
	"type": "object",
	"required": ["name"],
	"additionalProperties": false,
	"properties": {` + contactFieldProperties + `}
}`

var updateContactSchemaJSON = `{
	"type": "object",
	"additionalProperties": false,
	"minProperties": 1,
	"properties": {` + contactFieldProperties + `}
}`

var outreachSentSchemaJSON = `{
	"type": "object",
	"required": ["channel"],
	"additionalProperties": false,
	"properties": {
		"channel": {"type": "string", "enum": ["email", "sms"]}
	}
}`

var meetingScheduledSchemaJSON = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"when": {"type": "string", "pattern": "^([0-9]{4}-[0-9]{2}-[0-9]{2})?$"},
		"payload": {"type": "string"}
	}
}`

var archiveSchemaJSON = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"reason": {"type": "string"}
	}
}`

type requestSchemas struct {
	create           *jsonschema.Schema
	update           *jsonschema.Schema
	outreachSent     *jsonschema.Schema
	meetingScheduled *jsonschema.Schema
	archive          *jsonschema.Schema
}

func compileRequestSchemas() (*requestSchemas, error) {
	compiler := jsonschema.NewCompiler()
	add := func(name, raw string) error {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return fmt.Errorf("parse schema %s: %w", name, err)
		}
		return compiler.AddResource(name, doc)
	}
	if err := add("contact-create.json", createContactSchemaJSON); err != nil {
		return nil, err
	}
	if err := add("contact-update.json", updateContactSchemaJSON); err != nil {
		return nil, err
	}
	if err := add("outreach-sent.json", outreachSentSchemaJSON); err != nil {
		return nil, err
	}
	if err := add("meeting-scheduled.json", meetingScheduledSchemaJSON); err != nil {
		return nil, err
	}
	if err := add("archive.json", archiveSchemaJSON); err != nil {
		return nil, err
	}

	var (
		s   requestSchemas
		err error
	)
	if s.create, err = compiler.Compile("contact-create.json"); err != nil {
		return nil, err
	}
	if s.update, err = compiler.Compile("contact-update.json"); err != nil {
		return nil, err
	}
	if s.outreachSent, err = compiler.Compile("outreach-sent.json"); err != nil {
		return nil, err
	}
	if s.meetingScheduled, err = compiler.Compile("meeting-scheduled.json"); err != nil {
		return nil, err
	}
	if s.archive, err = compiler.Compile("archive.json"); err != nil {
		return nil, err
	}
	return &s, nil
}

func validateAgainst(schema *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid json body")
	}
	if err := schema.Validate(inst); err != nil {
		return err
	}
	return nil
}
