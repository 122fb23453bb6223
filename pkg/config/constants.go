package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "MAHARA"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags (error messages, tests).
const (
	EnvAppEnv = "MAHARA_APP_ENV"
	EnvPort   = "MAHARA_APP_PORT"

	EnvDBDSN  = "MAHARA_DB_DSN"
	EnvDBHost = "MAHARA_DB_HOST"
	EnvDBUser = "MAHARA_DB_USER"
	EnvDBName = "MAHARA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
