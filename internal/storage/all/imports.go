// Package all registers every built-in storage backend with the storage
// factory. Import it for side effects:
//
//	import _ "tripetl/internal/storage/all"
//
// after which storage.New accepts the kinds "sqlite", "postgres", "mssql"
// and "mysql". Binaries that need fewer backends can import the backend
// packages individually instead.
package all

import (
	_ "tripetl/internal/storage/mssql"
	_ "tripetl/internal/storage/mysql"
	_ "tripetl/internal/storage/postgres"
	_ "tripetl/internal/storage/sqlite"
)
