// Package common provides the constants and report types shared by the
// warpbundle commands.
package common

// Environment variable names for configuration.
const (
	// ConfigPathEnv is the environment variable naming the config file.
	ConfigPathEnv = "WARPBUNDLE_CONFIG"

	// RPCSecretEnv is the environment variable for the origin RPC token.
	RPCSecretEnv = "WARPBUNDLE_RPC_SECRET"

	// JSONLogsEnv switches logging to zerolog JSON lines.
	JSONLogsEnv = "WARPBUNDLE_JSON_LOGS"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "WARPBUNDLE_DEBUG"

	// LogFileEnv names a file that receives every log message as JSON lines.
	LogFileEnv = "WARPBUNDLE_LOG_FILE"
)
