// Package all wires every built-in storage backend into the storage
// factory. Import it for side effects from the command wiring:
//
//	import _ "sessionetl/internal/storage/all"
//
// after which storage.New accepts "cassandra", "memory", "sqlite",
// "postgres", "mysql" and "mssql". A binary that needs fewer backends can
// import the individual packages instead.
package all

import (
	_ "sessionetl/internal/storage/cassandra"
	_ "sessionetl/internal/storage/memory"
	_ "sessionetl/internal/storage/mssql"
	_ "sessionetl/internal/storage/mysql"
	_ "sessionetl/internal/storage/postgres"
	_ "sessionetl/internal/storage/sqlite"
)
