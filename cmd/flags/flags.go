// SPDX-License-Identifier: Apache-2.0

package flags

import (
	"time"

	"github.com/spf13/viper"
)

func Host() string {
	return viper.GetString("HOST")
}

func Port() int {
	return viper.GetInt("PORT")
}

func ControlPlaneURL() string {
	return viper.GetString("CONTROL_PLANE_URL")
}

// SharedPoolURL is the Postgres connection string used for every
// BackendSchema tenant database. It defaults to ControlPlaneURL since
// schema-backed tenants live on the same cluster as postgate's own
// metadata, scoped by search_path rather than by a separate connection.
func SharedPoolURL() string {
	if url := viper.GetString("SHARED_POOL_URL"); url != "" {
		return url
	}
	return ControlPlaneURL()
}

func DefaultTimeout() time.Duration {
	return viper.GetDuration("DEFAULT_TIMEOUT")
}

func LogLevel() string {
	return viper.GetString("LOG_LEVEL")
}
