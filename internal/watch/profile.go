// Package watch holds the daemon's watch profile: which clubs to report
// notifications for, and how many one poll may emit. The profile lives in
// a YAML file that is reloaded periodically, so it can change without a
// restart.
package watch

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/mujykun/ucube/models"
)

// Profile is one parsed watch profile. The zero value watches every club
// with no per-poll limit; IsLoaded distinguishes it from a loaded profile
// that happens to say the same.
type Profile struct {
	// Clubs is the allowlist of club slugs to report on. Empty means all.
	Clubs []string `yaml:"clubs"`

	// MaxPerPoll caps how many notifications a single poll may emit.
	// Zero means no cap.
	MaxPerPoll int `yaml:"max_per_poll"`

	digest string `yaml:"-"`
}

// Parse decodes a watch profile from YAML. Unknown fields fail the load:
// a typo in the profile must not silently widen the watch.
func Parse(content []byte) (Profile, error) {
	var p Profile

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("watch profile parsing failed: %w", err)
	}

	hash := sha256.Sum256(content)
	p.digest = hex.EncodeToString(hash[:])

	return p, nil
}

// LoadFile reads and parses a watch profile file.
func LoadFile(path string) (Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("watch profile load failed from %s: %w", path, err)
	}
	return Parse(content)
}

// Digest returns the SHA256 of the source content, for change detection.
func (p Profile) Digest() string {
	return p.digest
}

// IsLoaded reports whether this profile came from an actual file.
func (p Profile) IsLoaded() bool {
	return p.digest != ""
}

// Watches reports whether notifications for the club should be emitted.
func (p Profile) Watches(clubSlug string) bool {
	if len(p.Clubs) == 0 {
		return true
	}
	return slices.Contains(p.Clubs, clubSlug)
}

// Filter applies the profile to a batch of notifications: clubs outside
// the allowlist are dropped, and the result is capped at MaxPerPoll.
// Order is preserved.
func (p Profile) Filter(notifications []*models.Notification) []*models.Notification {
	kept := make([]*models.Notification, 0, len(notifications))
	for _, n := range notifications {
		if !p.Watches(n.ClubSlug) {
			continue
		}
		kept = append(kept, n)

		if p.MaxPerPoll > 0 && len(kept) == p.MaxPerPoll {
			break
		}
	}
	return kept
}
