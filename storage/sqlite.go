package storage

import (
	"context"
	"database/sql"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const initSQL = `CREATE TABLE IF NOT EXISTS punishments (
	id INTEGER PRIMARY KEY NOT NULL,
	type VARCHAR(16) NOT NULL,
	player VARCHAR(36) NOT NULL,
	player_name VARCHAR(32) NOT NULL,
	player_ip VARCHAR(45) NOT NULL,
	staff VARCHAR(64) NOT NULL,
	reason TEXT NOT NULL,
	server VARCHAR(64) NOT NULL,
	date INTEGER NOT NULL,
	duration INTEGER NOT NULL,
	global BOOLEAN NOT NULL,
	silent BOOLEAN NOT NULL
);`

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens and initializes a SQLite3 database at path, ":memory:" included
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open punishment database")
	}
	// a single connection serializes writers and keeps in-memory databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(initSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "could not initialize punishment database")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SavePunishment(ctx context.Context, p *protocol.Punishment) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO punishments (
		id,
		type,
		player,
		player_name,
		player_ip,
		staff,
		reason,
		server,
		date,
		duration,
		global,
		silent
	) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	);`, p.ID, string(p.Type), p.Player.String(), p.PlayerName, p.PlayerIP, p.Staff, p.Reason, p.Server,
		p.Date, p.Duration, p.Global, p.Silent)
	return errors.Wrapf(err, "could not save punishment #%d", p.ID)
}

func (s *SQLiteStore) DeletePunishment(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM punishments WHERE id = ?;`, id)
	return errors.Wrapf(err, "could not delete punishment #%d", id)
}

func (s *SQLiteStore) LoadPunishments(ctx context.Context) ([]protocol.Punishment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, type, player, player_name, player_ip, staff, reason, server, date, duration, global, silent
	FROM punishments ORDER BY id;`)
	if err != nil {
		return nil, errors.Wrap(err, "could not query punishments")
	}
	defer rows.Close()

	var punishments []protocol.Punishment
	for rows.Next() {
		var p protocol.Punishment
		var kind, player string
		if err := rows.Scan(&p.ID, &kind, &player, &p.PlayerName, &p.PlayerIP, &p.Staff, &p.Reason, &p.Server,
			&p.Date, &p.Duration, &p.Global, &p.Silent); err != nil {
			return nil, errors.Wrap(err, "could not read punishment")
		}
		p.Type = protocol.PunishmentType(kind)
		if p.Player, err = uuid.Parse(player); err != nil {
			return nil, errors.Wrapf(err, "punishment #%d has invalid player", p.ID)
		}
		punishments = append(punishments, p)
	}
	return punishments, errors.Wrap(rows.Err(), "could not read punishments")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
