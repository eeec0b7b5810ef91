package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath          string         `json:"db_path"`
	DBSizeBytes     int64          `json:"db_size_bytes"`
	GlobalMemories  int            `json:"global_memories"`
	ProjectMemories int            `json:"project_memories"`
	Blobs           int            `json:"blobs"`
	BlobBytes       int64          `json:"blob_bytes"`
	Categories      map[string]int `json:"categories"`
	Projects        []ProjectStats `json:"projects"`
}

// ProjectStats holds per-project counts.
type ProjectStats struct {
	ProjectPath string `json:"project_path"`
	Count       int    `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, Categories: map[string]int{}}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM global_memories`).Scan(&st.GlobalMemories); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_memories`).Scan(&st.ProjectMemories); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM blobs`).Scan(&st.Blobs, &st.BlobBytes); err != nil {
		return st, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT json_extract(doc, '$.category') AS category, COUNT(*) FROM (
			SELECT doc FROM global_memories UNION ALL SELECT doc FROM project_memories
		) GROUP BY category`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return st, err
		}
		st.Categories[cat] = n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	st.Projects, err = s.ListProjects(ctx)
	return st, err
}

// ListProjects returns every project path with its memory count.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]ProjectStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT json_extract(doc, '$.projectPath') AS path, COUNT(*) AS cnt
		FROM project_memories
		GROUP BY path ORDER BY cnt DESC, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []ProjectStats
	for rows.Next() {
		var p ProjectStats
		if err := rows.Scan(&p.ProjectPath, &p.Count); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
