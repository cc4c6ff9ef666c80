// Package config loads the OpenProject connection settings.
//
// Settings are read from environment variables with the OPENPROJECT_ prefix,
// optionally seeded from a dotenv file. Environment variables win over the
// file, and the file wins over built-in defaults:
//
//	OPENPROJECT_URL             backend base URL (default http://77.232.130.90:8085)
//	OPENPROJECT_API_KEY         API key used for basic auth (no default)
//	OPENPROJECT_QUERY_ID_BUGS   saved query backing the "Баги" column (default 1390)
//	OPENPROJECT_QUERY_ID_READY  saved query backing the "Готово к разработке" column (default 1378)
//	OPENPROJECT_AI_DEV_FIELD    custom field holding the AI-dev flag (default customField2)
//
// A Loader carries the environment and the parsed env file. cmd/serve.go
// builds one and reads both Settings and the instrumentation config through
// it, so the env file may set any of their variables. Decoded structs are
// checked with ValidateStruct.
//
// Settings are loaded once at startup and are not modified afterwards.
package config
