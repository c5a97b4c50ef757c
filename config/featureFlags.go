package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Feature flags are env-driven so Cloud Run revisions can toggle them
// without a rebuild.

// PredictionsDisabled turns off calls to the external prediction service.
// Drafts are then created with an empty prediction list.
func PredictionsDisabled() bool {
	return boolFromEnv("DISABLE_PREDICTIONS", false)
}

// ReconcileInterval returns how often the stale-draft reconciler runs.
// Zero (the default) means the background reconciler is off and cleanup
// only happens via the ops endpoint.
func ReconcileInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("FIR_RECONCILE_INTERVAL"))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// OutboxDispatcherDisabled keeps event records in PENDING. Useful for
// local runs without pubsub credentials.
func OutboxDispatcherDisabled() bool {
	return boolFromEnv("DISABLE_OUTBOX_DISPATCHER", false)
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
