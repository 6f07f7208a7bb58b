package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// SourceKind identifies where part of a profile summary came from.
type SourceKind string

const (
	SourceResume   SourceKind = "resume"
	SourceLinkedIn SourceKind = "linkedin"
	SourceGitHub   SourceKind = "github"
)

// ProfileSources holds the three raw inputs a user profile is built from.
type ProfileSources struct {
	Resume      []byte `json:"-"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	GitHubURL   string `json:"github_url,omitempty"`
}

// Provenance lists which sources were present when the profile was built.
func (s ProfileSources) Provenance() []SourceKind {
	var out []SourceKind
	if len(s.Resume) > 0 {
		out = append(out, SourceResume)
	}
	if s.LinkedInURL != "" {
		out = append(out, SourceLinkedIn)
	}
	if s.GitHubURL != "" {
		out = append(out, SourceGitHub)
	}
	return out
}

// ContentHash returns a hex sha256 over the three raw sources. Each field is
// length-prefixed so that moving bytes between fields changes the hash.
func (s ProfileSources) ContentHash() string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, part := range [][]byte{s.Resume, []byte(s.LinkedInURL), []byte(s.GitHubURL)} {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(part)))
		h.Write(lenBuf[:])
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// UserProfile is the cached, summarized view of a user used for drafting.
type UserProfile struct {
	UserID      string       `json:"user_id"`
	Summary     string       `json:"summary"`
	Provenance  []SourceKind `json:"provenance"`
	ContentHash string       `json:"content_hash"`
	BuiltAt     time.Time    `json:"built_at"`
	// Invalidated forces the next build regardless of ContentHash.
	Invalidated bool `json:"invalidated,omitempty"`
}
