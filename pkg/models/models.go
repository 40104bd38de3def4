package models

import (
	"time"

	"gorm.io/gorm"
)

// Project is a stored snapshot of a parsed response.
type Project struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Name     string `json:"name" gorm:"uniqueIndex;not null"`
	Strategy string `json:"strategy"`  // parser strategy that produced the files
	RootPath string `json:"root_path"` // root component after repair
	Response string `json:"-" gorm:"type:text"`
	Hash     string `json:"hash"` // workspace hash for change detection

	FileCount int `json:"file_count" gorm:"default:0"`

	Files []ProjectFile `json:"files,omitempty" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// ProjectFile is one file of a project snapshot.
type ProjectFile struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID uint   `json:"project_id" gorm:"index;not null"`
	Position  int    `json:"position" gorm:"not null"` // insertion order within the snapshot
	Path      string `json:"path" gorm:"not null"`
	Content   string `json:"content" gorm:"type:text"`
	Size      int64  `json:"size" gorm:"default:0"`
}

// Publication records a bundle published to a hosting target.
type Publication struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	Project string `json:"project" gorm:"index"`
	Surface string `json:"surface" gorm:"index"`
	Target  string `json:"target"` // s3, dir
	URL     string `json:"url"`
	Hash    string `json:"hash"`
	Size    int    `json:"size"`
}
