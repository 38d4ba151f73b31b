// Package migration は同梱マイグレーションを golang-migrate で適用します。
package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Action はマイグレーション操作の種類です。
type Action string

const (
	ActionUp      Action = "up"
	ActionDown    Action = "down"
	ActionDrop    Action = "drop"
	ActionVersion Action = "version"
)

// ErrUnsupportedAction は未知の操作が指定された場合に返却されます。
var ErrUnsupportedAction = errors.New("migration: unsupported action")

// ParseAction は文字列を Action に変換します。
func ParseAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case ActionUp, ActionDown, ActionDrop, ActionVersion:
		return a, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedAction, raw)
	}
}

// Run は fsys 直下の dir にあるマイグレーションを dsn のデータベースへ適用します。
func Run(fsys fs.FS, dir, dsn string, action Action) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("migration: open source %s: %w", dir, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migration: create migrate instance: %w", err)
	}
	defer m.Close()

	switch action {
	case ActionUp:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration: up: %w", err)
		}
		return nil
	case ActionDown:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration: down: %w", err)
		}
		return nil
	case ActionDrop:
		return m.Drop()
	case ActionVersion:
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				slog.Info("no migration applied")
				return nil
			}
			return err
		}
		slog.Info("migration version", "version", version, "dirty", dirty)
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedAction, action)
	}
}
