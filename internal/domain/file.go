package domain

import (
	"encoding/json"
)

// FieldFile is a file-backed field value. It keeps a reference to the entity
// that owns it so a storage backend can resolve paths lazily.
type FieldFile struct {
	Name  string
	Size  int64
	owner any
}

// NewFieldFile binds a file name to its owning entity.
func NewFieldFile(owner any, name string) FieldFile {
	return FieldFile{Name: name, owner: owner}
}

// Owner returns the entity the file belongs to. Snapshots and decoded values
// have no owner.
func (f FieldFile) Owner() any {
	return f.owner
}

// HistorySnapshot drops the owner so a baseline never holds the entity graph.
func (f FieldFile) HistorySnapshot() any {
	return FieldFile{Name: f.Name, Size: f.Size}
}

// Equal compares files by name.
func (f FieldFile) Equal(other FieldFile) bool {
	return f.Name == other.Name
}

func (f FieldFile) MarshalJSON() ([]byte, error) {
	if f.Name == "" {
		return []byte("null"), nil
	}
	return json.Marshal(f.Name)
}

func (f *FieldFile) UnmarshalJSON(data []byte) error {
	var name *string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	f.owner = nil
	f.Size = 0
	f.Name = ""
	if name != nil {
		f.Name = *name
	}
	return nil
}
