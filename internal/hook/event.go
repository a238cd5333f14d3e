package hook

import "encoding/json"

// EventType is the value of the "type" field sent to the hook program.
type EventType string

const (
	EventNoteUpdated   EventType = "note_updated"
	EventNoteDeleted   EventType = "note_deleted"
	EventImageUploaded EventType = "image_uploaded"
	EventSyncAll       EventType = "sync_all"
	EventGenerateHTML  EventType = "generate_html"
)

// Event is one lifecycle message for the hook program. The concrete types
// below are the only implementations.
type Event interface {
	Type() EventType
	// Subject identifies what the event is about, for logs and the journal.
	Subject() string
	json.Marshaler
}

// NoteUpdated is sent after a note file was written to the mirror.
type NoteUpdated struct {
	NoteID   string `json:"note_id"`
	NotePath string `json:"note_path"`
}

func (e NoteUpdated) Type() EventType { return EventNoteUpdated }
func (e NoteUpdated) Subject() string { return e.NoteID }

func (e NoteUpdated) MarshalJSON() ([]byte, error) {
	type fields NoteUpdated
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.Type(), fields(e)})
}

// NoteDeleted is sent after a note file was removed from the mirror.
type NoteDeleted struct {
	NoteID string `json:"note_id"`
}

func (e NoteDeleted) Type() EventType { return EventNoteDeleted }
func (e NoteDeleted) Subject() string { return e.NoteID }

func (e NoteDeleted) MarshalJSON() ([]byte, error) {
	type fields NoteDeleted
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.Type(), fields(e)})
}

// ImageUploaded is sent after an image was copied into the mirror. The hook
// may answer with a public URL on stdout.
type ImageUploaded struct {
	LocalPath string `json:"local_path"`
	Hash      string `json:"hash"`
}

func (e ImageUploaded) Type() EventType { return EventImageUploaded }
func (e ImageUploaded) Subject() string { return e.Hash }

func (e ImageUploaded) MarshalJSON() ([]byte, error) {
	type fields ImageUploaded
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.Type(), fields(e)})
}

// SyncAll asks the hook to perform a bulk operation over the whole mirror.
type SyncAll struct {
	SyncFolder string `json:"sync_folder"`
}

func (e SyncAll) Type() EventType { return EventSyncAll }
func (e SyncAll) Subject() string { return e.SyncFolder }

func (e SyncAll) MarshalJSON() ([]byte, error) {
	type fields SyncAll
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.Type(), fields(e)})
}

// GenerateHTML is sent after a standalone viewer was exported.
type GenerateHTML struct {
	OutputPath string `json:"output_path"`
	IndexPath  string `json:"index_path"`
}

func (e GenerateHTML) Type() EventType { return EventGenerateHTML }
func (e GenerateHTML) Subject() string { return e.OutputPath }

func (e GenerateHTML) MarshalJSON() ([]byte, error) {
	type fields GenerateHTML
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.Type(), fields(e)})
}
