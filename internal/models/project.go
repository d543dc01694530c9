package models

import "time"

// Project is an editable design source (a drawing category) and its component structure.
type Project struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Structure *Structure `json:"structure"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Design is an exported selection of a project, deduplicated by its structural hash.
type Design struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Hash      string          `json:"hash"`
	Snapshot  *DesignSnapshot `json:"snapshot"`
	Structure *Structure      `json:"structure"`
	CreatedAt time.Time       `json:"created_at"`
}
