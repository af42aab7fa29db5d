// Package figure manages historical-figure personas: their metadata on
// disk, their vector collections, and chunk-level mutation.
package figure

import (
	"regexp"
	"time"
	"unicode/utf8"
)

// Field length limit for description and persona text.
const maxFieldLen = 400

var (
	// Figure ids are ASCII letters only; they name directories and files.
	idRe = regexp.MustCompile(`^[a-zA-Z]+$`)
	// Display names allow letters in any script plus spaces.
	nameRe = regexp.MustCompile(`^[\p{L} ]+$`)
)

// Figure is one persona's metadata, persisted as
// figures/<id>/metadata.json.
type Figure struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Persona is the system-prompt text describing how the figure speaks.
	Persona string `json:"persona"`
	// ImagePath is the stored portrait file, empty when none was uploaded.
	ImagePath string `json:"image_path,omitempty"`
	// DocumentCount is the number of indexed chunks, kept in sync with the
	// vector collection.
	DocumentCount int       `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ValidateFields checks id, name, description, and persona, returning a
// field-name to message map. An empty map means valid. Pass skipID for
// updates, where the id is fixed.
func ValidateFields(id, name, description, persona string, skipID bool) map[string]string {
	errs := make(map[string]string)

	if !skipID {
		if id == "" {
			errs["id"] = "id is required"
		} else if !idRe.MatchString(id) {
			errs["id"] = "id must contain only ASCII letters"
		}
	}

	if name == "" {
		errs["name"] = "name is required"
	} else if !nameRe.MatchString(name) {
		errs["name"] = "name must contain only letters and spaces"
	}

	if utf8.RuneCountInString(description) > maxFieldLen {
		errs["description"] = "description must be at most 400 characters"
	}
	if utf8.RuneCountInString(persona) > maxFieldLen {
		errs["persona"] = "persona must be at most 400 characters"
	}

	return errs
}
