package scrape

import (
	"strings"

	"github.com/vmunix/wantarr/pkg/release"
)

// Spec is one entry in a Profile's ordered accept list: a release
// matches if every attribute the spec constrains, resolution included,
// matches; a zero-valued field leaves that attribute unconstrained. Grounded on the
// teacher's internal/search.QualitySpec (ParseQualitySpec/Matches),
// extended per spec.md §4.6's ranking profile ("resolution, audio,
// language, HDR, proper/repack, dual-audio, network") beyond the
// teacher's resolution+source pair.
type Spec struct {
	Resolution release.Resolution
	Source     release.Source // SourceUnknown means any source
	HDR        release.HDRFormat
	Audio      release.AudioCodec
	Network    string // case-insensitive; "" means any
	PreferProperRepack bool
}

// Matches reports whether info satisfies this Spec. Every field the
// Spec constrains (non-zero/non-empty) must match exactly.
func (s Spec) Matches(info release.Info) bool {
	if s.Resolution != release.ResolutionUnknown && s.Resolution != info.Resolution {
		return false
	}
	if s.Source != release.SourceUnknown && s.Source != info.Source {
		return false
	}
	if s.HDR != release.HDRNone && s.HDR != info.HDR {
		return false
	}
	if s.Audio != release.AudioUnknown && s.Audio != info.Audio {
		return false
	}
	if s.Network != "" && !strings.EqualFold(s.Network, info.Service) {
		return false
	}
	return true
}

// Profile is an ordered accept list (highest priority first) plus two
// bans: Reject, substrings matched against the release group, and
// BannedCodecs. It mirrors search.Scorer but is keyed by Spec instead
// of QualitySpec so it can
// score the richer attribute set §4.6 calls for.
type Profile struct {
	Specs        []Spec
	Reject       []string       // case-insensitive substrings of the release group to ban outright
	BannedCodecs []release.Codec
}

// Score returns len(Specs)-i for the first matching spec (i=0 scores
// highest), or 0 if info matches none, its codec is banned, or its
// release group trips a banned-substring reject entry (spec.md §4.6's
// "banned codec/quality" garbage filter).
func (p Profile) Score(info release.Info) int {
	for _, c := range p.BannedCodecs {
		if c == info.Codec {
			return 0
		}
	}
	for _, r := range p.Reject {
		if r == "" {
			continue
		}
		if strings.Contains(strings.ToLower(info.Group), strings.ToLower(r)) {
			return 0
		}
	}

	for i, spec := range p.Specs {
		if spec.Matches(info) {
			score := len(p.Specs) - i
			if spec.PreferProperRepack && (info.Proper || info.Repack) {
				score += len(p.Specs)
			}
			return score
		}
	}
	return 0
}
