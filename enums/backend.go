package enums

type StateBackend string

const (
	StateBackendFiles    StateBackend = "files"
	StateBackendSQLite   StateBackend = "sqlite"
	StateBackendPostgres StateBackend = "postgres"
)
