package connector

// Well-known key types shared across adapters. Adapters may define
// additional system-specific key types; these cover the common ones so
// configuration stays consistent between systems.
const (
	KeyTypeHost     KeyType = "host"
	KeyTypePort     KeyType = "port"
	KeyTypeDatabase KeyType = "database"
	KeyTypeUsername KeyType = "username"
	KeyTypePassword KeyType = "password"
	KeyTypeSSLMode  KeyType = "ssl_mode"

	KeyTypeURL              KeyType = "url"
	KeyTypeAPIToken         KeyType = "api_token"
	KeyTypeConnectionString KeyType = "connection_string"

	KeyTypeAccount   KeyType = "account"
	KeyTypeWarehouse KeyType = "warehouse"
	KeyTypeSchema    KeyType = "schema"

	KeyTypeRegion          KeyType = "region"
	KeyTypeAccessKeyID     KeyType = "access_key_id"
	KeyTypeSecretAccessKey KeyType = "secret_access_key"
	KeyTypeBucket          KeyType = "bucket"

	KeyTypeBrokers KeyType = "brokers"

	KeyTypeProject         KeyType = "project"
	KeyTypeCredentialsJSON KeyType = "credentials_json"

	KeyTypeBotToken     KeyType = "bot_token"
	KeyTypeClientID     KeyType = "client_id"
	KeyTypeClientSecret KeyType = "client_secret"
	KeyTypeRefreshToken KeyType = "refresh_token"
)
