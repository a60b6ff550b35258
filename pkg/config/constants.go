package config

// EnvPrefix is the envconfig prefix shared by every variable the service reads.
const EnvPrefix = "DOMICILIOS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "DOMICILIOS_DB_DSN"
	EnvDBHost = "DOMICILIOS_DB_HOST"
	EnvDBUser = "DOMICILIOS_DB_USER"
	EnvDBName = "DOMICILIOS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
