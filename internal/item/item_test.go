package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlacklistStream(t *testing.T) {
	m := &MediaItem{
		Streams: map[string]Stream{
			"good": {RawTitle: "Example.2020.1080p"},
			"bad":  {RawTitle: "Garbage"},
		},
		ActiveStream: ActiveStream{InfoHash: "bad", TorrentID: "123"},
	}

	m.BlacklistStream("bad")

	_, stillThere := m.Streams["bad"]
	assert.False(t, stillThere)
	assert.Contains(t, m.Streams, "good")
	assert.True(t, m.ActiveStream.Empty())
}

func TestBlacklistStreamLeavesUnrelatedActiveStream(t *testing.T) {
	m := &MediaItem{
		Streams:      map[string]Stream{"bad": {}},
		ActiveStream: ActiveStream{InfoHash: "good"},
	}
	m.BlacklistStream("bad")
	assert.Equal(t, "good", m.ActiveStream.InfoHash)
}

func TestResetForRescrape(t *testing.T) {
	m := &MediaItem{
		Streams:        map[string]Stream{"h": {}},
		ActiveStream:   ActiveStream{InfoHash: "h"},
		File:           "x.mkv",
		Folder:         "f",
		SymlinkedTimes: 3,
		ScrapedTimes:   2,
	}

	m.ResetForRescrape()

	assert.Empty(t, m.Streams)
	assert.True(t, m.ActiveStream.Empty())
	assert.Empty(t, m.File)
	assert.Empty(t, m.Folder)
	assert.Zero(t, m.SymlinkedTimes)
	assert.Zero(t, m.ScrapedTimes)
	assert.Equal(t, StateUnknown, DeriveState(m))
}

func TestCopyMetadataIfAbsent(t *testing.T) {
	other := &MediaItem{
		Title:    "Example",
		TVDBID:   "tvdb-1",
		TMDBID:   "tmdb-1",
		Network:  "HBO",
		Country:  "US",
		Language: "en",
		Genres:   []string{"drama"},
		IsAnime:  true,
	}

	dst := &MediaItem{Title: "Already Set"}
	dst.CopyMetadataIfAbsent(other)

	assert.Equal(t, "Already Set", dst.Title, "existing title must not be overwritten")
	assert.Equal(t, "tvdb-1", dst.TVDBID)
	assert.Equal(t, "tmdb-1", dst.TMDBID)
	assert.Equal(t, "HBO", dst.Network)
	assert.Equal(t, "US", dst.Country)
	assert.Equal(t, "en", dst.Language)
	assert.Equal(t, []string{"drama"}, dst.Genres)
	assert.True(t, dst.IsAnime)
}
