package file

import "time"

// File is the metadata record of one uploaded file. The bytes live in the
// blob store under StoredName; the record never changes after Insert.
type File struct {
	Seq          uint64    `gorm:"column:seq;primaryKey;autoIncrement" json:"-"`
	ID           string    `gorm:"column:id;size:36;not null;uniqueIndex" json:"id"`
	StoredName   string    `gorm:"column:filename;not null;uniqueIndex" json:"-"`
	OriginalName string    `gorm:"column:original_name;not null" json:"name"`
	Size         int64     `gorm:"column:size;not null" json:"size"`
	Path         string    `gorm:"column:path;not null" json:"url"`
	UploadedAt   time.Time `gorm:"column:uploaded_at;not null;index" json:"uploaded"`
}

func (File) TableName() string { return "files" }
