package models

// Bundle is the persisted record of one accepted upload. Filename is
// derived at acceptance time and unique for the lifetime of the backing
// file; Created is immutable after insert. Redirect, when set, points
// downloads at a mirror copy instead of the local file.
type Bundle struct {
	Filename string  `json:"filename" gorm:"column:filename;primaryKey"`
	Url      string  `json:"url" gorm:"column:url"`
	Name     *string `json:"name,omitempty"`
	Version  *string `json:"version,omitempty"`
	Summary  *string `json:"summary,omitempty"`
	Icon     []byte  `json:"-" gorm:"column:icon"`
	Created  int64   `json:"created" gorm:"column:created"`
	Deleted  bool    `json:"-" gorm:"column:deleted"`
	Redirect string  `json:"-" gorm:"column:redirect"`
}

// BundleInfo is the external view of a stored bundle. Icon carries the
// raw bytes base64-encoded.
type BundleInfo struct {
	Filename string `json:"filename"`
	Url      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Icon     string `json:"icon,omitempty"`
	Created  int64  `json:"created"`
	Redirect string `json:"redirect,omitempty"`
}

type BundleParams struct {
	Filename string `path:"filename" validate:"required"`
}

// ServiceIndex is the root document listing the endpoints a client can
// reach.
type ServiceIndex struct {
	Upload   string `json:"upload"`
	Download string `json:"download"`
	Info     string `json:"info"`
}
