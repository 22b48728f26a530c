// Package models keeps the inventory of installed model files.
package models

import "time"

// Entry records one installed variant
type Entry struct {
	Variant     string    `json:"variant"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`                   // Size in bytes
	Digest      string    `json:"digest,omitempty"`       // BLAKE2b-256, hex
	Source      string    `json:"source,omitempty"`       // URL the file was fetched from
	InstalledAt time.Time `json:"installed_at"`           // Install or discovery time
	VerifiedAt  time.Time `json:"verified_at,omitempty"` // Last successful Verify
}

// State is the persisted inventory (models_state.json)
type State struct {
	Items   []Entry   `json:"items"`
	Updated time.Time `json:"updated"`
}

// Stats summarises the inventory
type Stats struct {
	TotalSize int64  `json:"total_size"`
	Count     int    `json:"count"`
	Newest    *Entry `json:"newest,omitempty"`
}

// VerifyResult reports a digest check of an installed file
type VerifyResult struct {
	Variant  string `json:"variant"`
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	OK       bool   `json:"ok"`
}
