// Package assets はバイナリに同梱する SQL マイグレーションを提供します。
package assets

import "embed"

// Migrations は golang-migrate 形式 (NNNNNN_name.{up,down}.sql) のマイグレーション群です。
//
//go:embed migrations/*.sql
var Migrations embed.FS
