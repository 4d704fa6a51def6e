package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	CredentialStatic      = "static"
	CredentialWebIdentity = "web_identity"
)

const (
	AdmissionMemory = "memory"
	AdmissionRedis  = "redis"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const MimeJSON = "application/json"
