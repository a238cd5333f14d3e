package mcpserver

// HookProtocol documents the contract between quire and a publish hook
// script. It is served as an MCP resource so agents can write hooks.
const HookProtocol = `# Quire Publish Hook Protocol

A publish hook is any executable file. Quire runs it once per lifecycle
event, writes one JSON object to its stdin, closes stdin, and reads stdout.

## Events

| type             | fields                                  |
|------------------|-----------------------------------------|
| note_updated     | note_id, note_path (absolute)           |
| note_deleted     | note_id                                 |
| image_uploaded   | local_path, hash                        |
| sync_all         | sync_folder (absolute)                  |
| generate_html    | output_path, index_path                 |

Example:

` + "```" + `json
{"type":"note_updated","note_id":"4f1c…","note_path":"/Users/me/Mirror/notes/4f1c….json"}
` + "```" + `

## Output

- For image_uploaded, the first non-blank stdout line is used as the
  image's public URL when it is an absolute URL. Otherwise the mirror path
  (or base_url/images/<file>) is used.
- Stdout is ignored for every other event.

## Exit status

- 0 means success.
- Anything else is a failure; stderr becomes the error detail and the sync
  status turns to "error". Files already written to the mirror stay.
- A hook that runs past the configured timeout (default 30s) is killed.

## Mirror layout

- notes/<id>.json: one note, secrets redacted when filtering is on
- images/<sha256>.<ext>: content-addressed images
- index.json: every note's summary, newest first

Events may arrive concurrently and out of order. Hooks must be idempotent.
`
