// Package upgrades holds the database schema migrations, embedded as
// SQL files and registered on a dbutil upgrade table.
package upgrades

import (
	"embed"

	"go.mau.fi/util/dbutil"
)

//go:embed *.sql
var rawUpgrades embed.FS

// Table is assigned to the database wrapper before Upgrade is called.
var Table dbutil.UpgradeTable

func init() {
	Table.RegisterFS(rawUpgrades)
}
