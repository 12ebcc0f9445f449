package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmunix/wantarr/internal/item"
)

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func encodeGenres(g []string) (string, error) {
	if len(g) == 0 {
		return "", nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode genres: %w", err)
	}
	return string(b), nil
}

func decodeGenres(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var g []string
	if err := json.Unmarshal([]byte(s.String), &g); err != nil {
		return nil, fmt.Errorf("decode genres: %w", err)
	}
	return g, nil
}

const itemColumns = `id, kind, parent_id, number, imdb_id, tmdb_id, tvdb_id, title, year,
	aired_at, genres, language, country, network, is_anime,
	requested_at, requested_by, indexed_at, scraped_at, scraped_times,
	symlinked, symlinked_at, symlinked_times,
	active_stream_infohash, active_stream_torrent_id, active_stream_filename, active_stream_alt_filename,
	file, folder, alternative_folder, key, guid, update_folder, last_state`

func scanItem(row interface {
	Scan(dest ...any) error
}) (*item.MediaItem, error) {
	var (
		m                                                   item.MediaItem
		kind                                                string
		parentID                                            sql.NullInt64
		number                                               sql.NullInt64
		imdbID, tmdbID, tvdbID                               sql.NullString
		title                                                sql.NullString
		year                                                 sql.NullInt64
		airedAt                                              sql.NullTime
		genres                                               sql.NullString
		language, country, network                           sql.NullString
		requestedAt                                          sql.NullTime
		requestedBy                                          sql.NullString
		indexedAt, scrapedAt                                 sql.NullTime
		symlinkedAt                                          sql.NullTime
		activeInfohash, activeTorrentID, activeFile, activeAlt sql.NullString
		file, folder, altFolder                              sql.NullString
		key, guid, updateFolder                              sql.NullString
		lastState                                            string
	)
	err := row.Scan(
		&m.ID, &kind, &parentID, &number, &imdbID, &tmdbID, &tvdbID, &title, &year,
		&airedAt, &genres, &language, &country, &network, &m.IsAnime,
		&requestedAt, &requestedBy, &indexedAt, &scrapedAt, &m.ScrapedTimes,
		&m.Symlinked, &symlinkedAt, &m.SymlinkedTimes,
		&activeInfohash, &activeTorrentID, &activeFile, &activeAlt,
		&file, &folder, &altFolder, &key, &guid, &updateFolder, &lastState,
	)
	if err != nil {
		return nil, err
	}

	m.Kind = item.Kind(kind)
	if parentID.Valid {
		m.ParentID = parentID.Int64
	}
	if number.Valid {
		m.Number = int(number.Int64)
	}
	m.IMDBID = imdbID.String
	m.TMDBID = tmdbID.String
	m.TVDBID = tvdbID.String
	m.Title = title.String
	m.Year = int(year.Int64)
	m.AiredAt = nullTimeToPtr(airedAt)
	g, err := decodeGenres(genres)
	if err != nil {
		return nil, err
	}
	m.Genres = g
	m.Language = language.String
	m.Country = country.String
	m.Network = network.String
	m.RequestedAt = nullTimeToPtr(requestedAt)
	m.RequestedBy = requestedBy.String
	m.IndexedAt = nullTimeToPtr(indexedAt)
	m.ScrapedAt = nullTimeToPtr(scrapedAt)
	m.SymlinkedAt = nullTimeToPtr(symlinkedAt)
	if activeInfohash.Valid {
		m.ActiveStream = item.ActiveStream{
			InfoHash:            activeInfohash.String,
			TorrentID:           activeTorrentID.String,
			Filename:            activeFile.String,
			AlternativeFilename: activeAlt.String,
		}
	}
	m.File = file.String
	m.Folder = folder.String
	m.AlternativeFolder = altFolder.String
	m.Key = key.String
	m.GUID = guid.String
	m.UpdateFolder = updateFolder.String
	m.LastState = item.State(lastState)
	m.Streams = map[string]item.Stream{}
	return &m, nil
}

func getItem(q querier, id int64) (*item.MediaItem, error) {
	row := q.QueryRow("SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	m, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, mapSQLiteError(err))
	}
	if err := loadStreams(q, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID fetches a single item by surrogate id, with its streams
// loaded. It does not load children; see Tree for the full subtree.
func (s *Store) GetByID(id int64) (*item.MediaItem, error) { return getItem(s.db, id) }

func getByIMDB(q querier, imdbID string) (*item.MediaItem, error) {
	row := q.QueryRow("SELECT "+itemColumns+" FROM items WHERE imdb_id = ? AND parent_id IS NULL", imdbID)
	m, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("get item by imdb %s: %w", imdbID, mapSQLiteError(err))
	}
	if err := loadStreams(q, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByIMDB fetches a root item (Movie or Show) by its IMDb id, the
// primary natural key per spec.md §3.
func (s *Store) GetByIMDB(imdbID string) (*item.MediaItem, error) { return getByIMDB(s.db, imdbID) }

func loadStreams(q querier, m *item.MediaItem) error {
	rows, err := q.Query("SELECT infohash, raw_title, rank, fetch_ok FROM item_streams WHERE item_id = ?", m.ID)
	if err != nil {
		return fmt.Errorf("load streams for item %d: %w", m.ID, err)
	}
	defer func() { _ = rows.Close() }()

	streams := map[string]item.Stream{}
	for rows.Next() {
		var infohash string
		var s item.Stream
		if err := rows.Scan(&infohash, &s.RawTitle, &s.Rank, &s.FetchOK); err != nil {
			return fmt.Errorf("scan stream for item %d: %w", m.ID, err)
		}
		streams[infohash] = s
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate streams for item %d: %w", m.ID, err)
	}
	m.Streams = streams
	return nil
}

// Children returns the direct children of id, ordered by number.
func (s *Store) Children(id int64) ([]*item.MediaItem, error) {
	rows, err := s.db.Query("SELECT "+itemColumns+" FROM items WHERE parent_id = ? ORDER BY number", id)
	if err != nil {
		return nil, fmt.Errorf("list children of %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*item.MediaItem
	for rows.Next() {
		m, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child of %d: %w", id, err)
		}
		if err := loadStreams(s.db, m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Tree loads id and its full subtree (Seasons/Episodes populated).
func (s *Store) Tree(id int64) (*item.MediaItem, error) {
	root, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.fillChildren(root); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *Store) fillChildren(m *item.MediaItem) error {
	switch m.Kind {
	case item.KindShow:
		seasons, err := s.Children(m.ID)
		if err != nil {
			return err
		}
		m.Seasons = seasons
		for _, season := range m.Seasons {
			season.Parent = m
			if err := s.fillChildren(season); err != nil {
				return err
			}
		}
	case item.KindSeason:
		episodes, err := s.Children(m.ID)
		if err != nil {
			return err
		}
		m.Episodes = episodes
		for _, episode := range m.Episodes {
			episode.Parent = m
		}
	}
	return nil
}
