package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrFavoriteExists   = errors.New("a favorite with that name already exists")
	ErrFavoriteNotFound = errors.New("no favorite with that name exists")
)

func (r *Repo) AddFavorite(ctx context.Context, f *Favorite) error {
	name := strings.TrimSpace(f.Name)
	query := strings.TrimSpace(f.Query)
	if name == "" || query == "" {
		return errors.New("favorite needs a name and a query")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites(guild_id, author_id, name, query) VALUES (?,?,?,?)`,
		f.GuildID, f.Author, name, query,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrFavoriteExists
	}
	return err
}

// RemoveFavorite deletes name from guild and reports how many rows went.
func (r *Repo) RemoveFavorite(ctx context.Context, guild, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE guild_id=? AND name=?`, guild, strings.TrimSpace(name))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) FindFavorite(ctx context.Context, guild, name string) (*Favorite, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, guild_id, author_id, name, query FROM favorites WHERE guild_id=? AND name=?`,
		guild, strings.TrimSpace(name))
	var f Favorite
	if err := row.Scan(&f.ID, &f.GuildID, &f.Author, &f.Name, &f.Query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFavoriteNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *Repo) ListFavorites(ctx context.Context, guild string) ([]Favorite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, guild_id, author_id, name, query FROM favorites WHERE guild_id=? ORDER BY name ASC`, guild)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.GuildID, &f.Author, &f.Name, &f.Query); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
