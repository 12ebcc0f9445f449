package store

import (
	"fmt"
	"time"

	"github.com/vmunix/wantarr/internal/item"
)

// Upsert inserts m if it has no id, or updates the existing row
// otherwise, then replaces its stream set. Enforces spec.md §3
// invariant 1 (Season/Episode orphans rejected) and invariant 2
// (sibling numbering uniqueness) via the schema's foreign key and
// partial unique index; both surface as ErrOrphan / ErrDuplicateNumber
// here rather than as raw SQLite errors.
func (s *Store) Upsert(m *item.MediaItem) error {
	if (m.Kind == item.KindSeason || m.Kind == item.KindEpisode) && m.ParentID == 0 {
		return fmt.Errorf("upsert %s %q: %w", m.Kind, m.Title, ErrOrphan)
	}

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertItem(tx.tx, m); err != nil {
		return err
	}
	if err := replaceStreams(tx.tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertItem(q querier, m *item.MediaItem) error {
	now := time.Now()
	genres, err := encodeGenres(m.Genres)
	if err != nil {
		return err
	}

	var activeHash, activeTorrent, activeFile, activeAlt any
	if !m.ActiveStream.Empty() {
		activeHash = m.ActiveStream.InfoHash
		activeTorrent = m.ActiveStream.TorrentID
		activeFile = m.ActiveStream.Filename
		activeAlt = m.ActiveStream.AlternativeFilename
	}

	var parentID any
	if m.ParentID != 0 {
		parentID = m.ParentID
	}
	var number any
	if m.Kind == item.KindSeason || m.Kind == item.KindEpisode {
		number = m.Number
	}

	lastState := string(item.DeriveState(m))
	m.LastState = item.State(lastState)

	if m.ID == 0 {
		result, err := q.Exec(`
			INSERT INTO items (
				kind, parent_id, number, imdb_id, tmdb_id, tvdb_id, title, year,
				aired_at, genres, language, country, network, is_anime,
				requested_at, requested_by, indexed_at, scraped_at, scraped_times,
				symlinked, symlinked_at, symlinked_times,
				active_stream_infohash, active_stream_torrent_id, active_stream_filename, active_stream_alt_filename,
				file, folder, alternative_folder, key, guid, update_folder, last_state,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Kind, parentID, number, nullString(m.IMDBID), nullString(m.TMDBID), nullString(m.TVDBID), nullString(m.Title), nullInt(m.Year),
			nullTime(m.AiredAt), genres, nullString(m.Language), nullString(m.Country), nullString(m.Network), m.IsAnime,
			nullTime(m.RequestedAt), nullString(m.RequestedBy), nullTime(m.IndexedAt), nullTime(m.ScrapedAt), m.ScrapedTimes,
			m.Symlinked, nullTime(m.SymlinkedAt), m.SymlinkedTimes,
			activeHash, activeTorrent, activeFile, activeAlt,
			nullString(m.File), nullString(m.Folder), nullString(m.AlternativeFolder), nullString(m.Key), nullString(m.GUID), nullString(m.UpdateFolder), lastState,
			now, now,
		)
		if err != nil {
			return fmt.Errorf("insert item %q: %w", m.Title, mapSQLiteError(err))
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id for %q: %w", m.Title, err)
		}
		m.ID = id
		return nil
	}

	result, err := q.Exec(`
		UPDATE items SET
			kind = ?, parent_id = ?, number = ?, imdb_id = ?, tmdb_id = ?, tvdb_id = ?, title = ?, year = ?,
			aired_at = ?, genres = ?, language = ?, country = ?, network = ?, is_anime = ?,
			requested_at = ?, requested_by = ?, indexed_at = ?, scraped_at = ?, scraped_times = ?,
			symlinked = ?, symlinked_at = ?, symlinked_times = ?,
			active_stream_infohash = ?, active_stream_torrent_id = ?, active_stream_filename = ?, active_stream_alt_filename = ?,
			file = ?, folder = ?, alternative_folder = ?, key = ?, guid = ?, update_folder = ?, last_state = ?,
			updated_at = ?
		WHERE id = ?`,
		m.Kind, parentID, number, nullString(m.IMDBID), nullString(m.TMDBID), nullString(m.TVDBID), nullString(m.Title), nullInt(m.Year),
		nullTime(m.AiredAt), genres, nullString(m.Language), nullString(m.Country), nullString(m.Network), m.IsAnime,
		nullTime(m.RequestedAt), nullString(m.RequestedBy), nullTime(m.IndexedAt), nullTime(m.ScrapedAt), m.ScrapedTimes,
		m.Symlinked, nullTime(m.SymlinkedAt), m.SymlinkedTimes,
		activeHash, activeTorrent, activeFile, activeAlt,
		nullString(m.File), nullString(m.Folder), nullString(m.AlternativeFolder), nullString(m.Key), nullString(m.GUID), nullString(m.UpdateFolder), lastState,
		now, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", m.ID, mapSQLiteError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for item %d: %w", m.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("update item %d: %w", m.ID, ErrNotFound)
	}
	return nil
}

func replaceStreams(q querier, m *item.MediaItem) error {
	if _, err := q.Exec("DELETE FROM item_streams WHERE item_id = ?", m.ID); err != nil {
		return fmt.Errorf("clear streams for item %d: %w", m.ID, err)
	}
	for hash, stream := range m.Streams {
		_, err := q.Exec(
			"INSERT INTO item_streams (item_id, infohash, raw_title, rank, fetch_ok) VALUES (?, ?, ?, ?, ?)",
			m.ID, hash, stream.RawTitle, stream.Rank, stream.FetchOK,
		)
		if err != nil {
			return fmt.Errorf("insert stream %s for item %d: %w", hash, m.ID, err)
		}
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}

// UpsertTree upserts m and, for a Show/Season, its Seasons/Episodes,
// wiring each child's ParentID to its freshly-assigned parent id. Used
// by the runner to persist a MetadataIndexer's output, which builds
// the season/episode skeleton as an in-memory tree (internal/indexer's
// buildSeasons) with no ids of its own yet.
func (s *Store) UpsertTree(m *item.MediaItem) error {
	if err := s.Upsert(m); err != nil {
		return err
	}
	for _, season := range m.Seasons {
		season.ParentID = m.ID
		if err := s.Upsert(season); err != nil {
			return err
		}
		for _, episode := range season.Episodes {
			episode.ParentID = season.ID
			if err := s.Upsert(episode); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveLastState recomputes and persists last_state for id and every
// node in its subtree, per spec.md §4.1 ("save_last_state(item): writes
// last_state (derived) for every node in the item's tree").
func (s *Store) SaveLastState(id int64) error {
	tree, err := s.Tree(id)
	if err != nil {
		return err
	}
	return s.saveLastStateRecursive(tree)
}

func (s *Store) saveLastStateRecursive(m *item.MediaItem) error {
	state := m.State()
	if _, err := s.db.Exec("UPDATE items SET last_state = ? WHERE id = ?", string(state), m.ID); err != nil {
		return fmt.Errorf("save last_state for item %d: %w", m.ID, err)
	}
	for _, season := range m.Seasons {
		if err := s.saveLastStateRecursive(season); err != nil {
			return err
		}
	}
	for _, episode := range m.Episodes {
		if err := s.saveLastStateRecursive(episode); err != nil {
			return err
		}
	}
	return nil
}

// Filter selects items for CountWhere/IterWhere.
type Filter struct {
	Kind       item.Kind
	States     []item.State
	ExcludeSet []item.State
	Limit      int
	Offset     int
}

func (f Filter) where() (string, []any) {
	var conditions []string
	var args []any
	if f.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, f.Kind)
	}
	if len(f.States) > 0 {
		ph := make([]string, len(f.States))
		for i, st := range f.States {
			ph[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "last_state IN ("+joinPlaceholders(ph)+")")
	}
	if len(f.ExcludeSet) > 0 {
		ph := make([]string, len(f.ExcludeSet))
		for i, st := range f.ExcludeSet {
			ph[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "last_state NOT IN ("+joinPlaceholders(ph)+")")
	}
	clause := ""
	if len(conditions) > 0 {
		clause = "WHERE " + join(conditions, " AND ")
	}
	return clause, args
}

func joinPlaceholders(ph []string) string { return join(ph, ", ") }

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// CountWhere returns the number of items matching f.
func (s *Store) CountWhere(f Filter) (int, error) {
	clause, args := f.where()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM items "+clause, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// IterWhere streams item ids matching f, batched by Limit (used by the
// scheduler's retry sweep, spec.md §4.10, to page through 1000 ids at a
// time without loading the whole table).
func (s *Store) IterWhere(f Filter) ([]int64, error) {
	clause, args := f.where()
	query := "SELECT id FROM items " + clause + " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes id and its entire subtree (child seasons and episodes,
// and the stream rows of all of them), used by the watcher's
// symlink-deletion handling (spec.md §4.9). The rows are deleted
// explicitly, so the result does not depend on foreign-key enforcement.
func (s *Store) Delete(id int64) error {
	const subtree = "SELECT id FROM items WHERE id = ? OR parent_id = ? OR parent_id IN (SELECT id FROM items WHERE parent_id = ?)"
	if _, err := s.db.Exec("DELETE FROM item_streams WHERE item_id IN ("+subtree+")", id, id, id); err != nil {
		return fmt.Errorf("delete item %d streams: %w", id, mapSQLiteError(err))
	}
	_, err := s.db.Exec("DELETE FROM items WHERE id IN ("+subtree+")", id, id, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, mapSQLiteError(err))
	}
	return nil
}
