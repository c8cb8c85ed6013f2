// Package leaderboard stores finished games in sqlite and answers the
// leaderboard queries served over HTTP.
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Tetris/internal/core"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// MinGamesForWinners is how many games a player needs before showing up in
// the top winners list.
const MinGamesForWinners = 3

const schema = `CREATE TABLE IF NOT EXISTS leaderboard (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_name TEXT NOT NULL,
	score INTEGER NOT NULL,
	lines_cleared INTEGER NOT NULL,
	level INTEGER NOT NULL,
	game_duration INTEGER NOT NULL,
	fast_mode BOOLEAN NOT NULL DEFAULT 0,
	is_win BOOLEAN NOT NULL DEFAULT 0,
	room_name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC);
CREATE INDEX IF NOT EXISTS idx_leaderboard_player ON leaderboard(player_name);`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to dsn (a file path or ":memory:") and creates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open leaderboard: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate leaderboard: %w", err)
	}
	log.Info().Str("module", "adapters.leaderboard").Str("dsn", dsn).Msg("leaderboard ready")
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record is one stored game of one player.
type Record struct {
	ID int64 `json:"id"`
	core.LeaderboardEntry
	CreatedAt time.Time `json:"createdAt"`
}

// Submit implements core.LeaderboardSink. All entries of a game land in one
// transaction.
func (s *Store) Submit(ctx context.Context, entries []core.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leaderboard
		(player_name, score, lines_cleared, level, game_duration, fast_mode, is_win, room_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.PlayerName, e.Score, e.LinesCleared, e.Level,
			e.GameDuration, e.FastMode, e.IsWin, string(e.RoomName), now); err != nil {
			return fmt.Errorf("insert %s: %w", e.PlayerName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Info().Str("module", "adapters.leaderboard").Int("entries", len(entries)).Msg("game recorded")
	return nil
}

const recordColumns = `id, player_name, score, lines_cleared, level, game_duration, fast_mode, is_win, room_name, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.PlayerName, &r.Score, &r.LinesCleared, &r.Level,
		&r.GameDuration, &r.FastMode, &r.IsWin, &r.RoomName, &r.CreatedAt)
	return r, err
}

// Top returns the best scores, optionally restricted to one mode.
func (s *Store) Top(ctx context.Context, limit int, fast *bool) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM leaderboard`
	args := []any{}
	if fast != nil {
		query += ` WHERE fast_mode = ?`
		args = append(args, *fast)
	}
	query += ` ORDER BY score DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top scores: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan top scores: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PlayerBest returns the best game of a player; ok is false when none exists.
func (s *Store) PlayerBest(ctx context.Context, name string, fast *bool) (Record, bool, error) {
	query := `SELECT ` + recordColumns + ` FROM leaderboard WHERE player_name = ?`
	args := []any{name}
	if fast != nil {
		query += ` AND fast_mode = ?`
		args = append(args, *fast)
	}
	query += ` ORDER BY score DESC, id ASC LIMIT 1`

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("player best: %w", err)
	}
	return r, true, nil
}

type PlayerStats struct {
	TotalGames          int     `json:"totalGames"`
	GamesWon            int     `json:"gamesWon"`
	BestScore           int     `json:"bestScore"`
	TotalLinesCleared   int     `json:"totalLinesCleared"`
	AverageGameDuration float64 `json:"averageGameDuration"`
	WinRate             float64 `json:"winRate"`
}

func (s *Store) PlayerStats(ctx context.Context, name string) (PlayerStats, error) {
	var st PlayerStats
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_win THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(score), 0),
			COALESCE(SUM(lines_cleared), 0),
			COALESCE(AVG(game_duration), 0)
		FROM leaderboard WHERE player_name = ?`, name).
		Scan(&st.TotalGames, &st.GamesWon, &st.BestScore, &st.TotalLinesCleared, &st.AverageGameDuration)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("player stats: %w", err)
	}
	if st.TotalGames > 0 {
		st.WinRate = float64(st.GamesWon) * 100 / float64(st.TotalGames)
	}
	return st, nil
}

type AllTimeStats struct {
	TopScore               int    `json:"topScore"`
	TopScorePlayer         string `json:"topScorePlayer"`
	MostLinesCleared       int    `json:"mostLinesCleared"`
	MostLinesClearedPlayer string `json:"mostLinesClearedPlayer"`
	LongestGameDuration    int    `json:"longestGameDuration"`
	LongestGamePlayer      string `json:"longestGamePlayer"`
	TotalGames             int    `json:"totalGames"`
}

func (s *Store) Stats(ctx context.Context) (AllTimeStats, error) {
	var st AllTimeStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaderboard`).Scan(&st.TotalGames); err != nil {
		return st, fmt.Errorf("count games: %w", err)
	}
	if st.TotalGames == 0 {
		return st, nil
	}
	best := func(col string, value *int, player *string) error {
		return s.db.QueryRowContext(ctx,
			`SELECT `+col+`, player_name FROM leaderboard ORDER BY `+col+` DESC, id ASC LIMIT 1`).
			Scan(value, player)
	}
	if err := best("score", &st.TopScore, &st.TopScorePlayer); err != nil {
		return st, fmt.Errorf("top score: %w", err)
	}
	if err := best("lines_cleared", &st.MostLinesCleared, &st.MostLinesClearedPlayer); err != nil {
		return st, fmt.Errorf("most lines: %w", err)
	}
	if err := best("game_duration", &st.LongestGameDuration, &st.LongestGamePlayer); err != nil {
		return st, fmt.Errorf("longest game: %w", err)
	}
	return st, nil
}

type Winner struct {
	PlayerName string  `json:"playerName"`
	GamesWon   int     `json:"gamesWon"`
	WinRate    float64 `json:"winRate"`
	BestScore  int     `json:"bestScore"`
}

// TopWinners ranks players with at least MinGamesForWinners games by wins.
func (s *Store) TopWinners(ctx context.Context, limit int) ([]Winner, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
			player_name,
			SUM(CASE WHEN is_win THEN 1 ELSE 0 END) AS games_won,
			ROUND(SUM(CASE WHEN is_win THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) AS win_rate,
			MAX(score)
		FROM leaderboard
		GROUP BY player_name
		HAVING COUNT(*) >= ?
		ORDER BY games_won DESC, win_rate DESC, player_name ASC
		LIMIT ?`, MinGamesForWinners, limit)
	if err != nil {
		return nil, fmt.Errorf("top winners: %w", err)
	}
	defer rows.Close()

	out := make([]Winner, 0, limit)
	for rows.Next() {
		var w Winner
		if err := rows.Scan(&w.PlayerName, &w.GamesWon, &w.WinRate, &w.BestScore); err != nil {
			return nil, fmt.Errorf("scan winners: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
