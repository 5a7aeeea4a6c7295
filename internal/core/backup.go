package core

import (
	"encoding/json"
	"fmt"
	"io"
)

// Backup is the export/import document. Every collection is optional.
type Backup struct {
	Entries         []Entry          `json:"entries,omitempty"`
	Accounts        []Account        `json:"accounts,omitempty"`
	Templates       []BillTemplate   `json:"templates,omitempty"`
	PaydayTemplates []PaydayTemplate `json:"paydayTemplates,omitempty"`
}

// Snapshot is a consistent read of one user's data.
type Snapshot struct {
	Entries         []Entry
	Accounts        []Account
	Templates       []BillTemplate
	PaydayTemplates []PaydayTemplate
}

// Backup converts the snapshot into its export form.
func (s Snapshot) Backup() Backup {
	return Backup{
		Entries:         s.Entries,
		Accounts:        s.Accounts,
		Templates:       s.Templates,
		PaydayTemplates: s.PaydayTemplates,
	}
}

// Len returns the number of documents in the backup.
func (b Backup) Len() int {
	return len(b.Entries) + len(b.Accounts) + len(b.Templates) + len(b.PaydayTemplates)
}

// ReadBackup decodes a backup document.
func ReadBackup(r io.Reader) (Backup, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Backup{}, fmt.Errorf("decode backup: %w", err)
	}
	return b, nil
}

// WriteBackup encodes b as indented JSON.
func WriteBackup(w io.Writer, b Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}
