package model

import "time"

// File is uploaded raw job data, referenced by JobSpecification.DataFile.
type File struct {
	ID        string    `json:"id"         db:"id"`
	Size      int64     `json:"size"       db:"size"`
	Checksum  string    `json:"checksum"   db:"checksum"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
