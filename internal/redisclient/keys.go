package redisclient

// RedisPrefix is the prefix for all keys and channels this service uses.
const RedisPrefix = "deploy:"

// StopChannel carries the ids of deployments whose tasks must be cancelled.
const StopChannel = RedisPrefix + "stop"

// LeaseKey returns the key holding the task lease of a deployment.
func LeaseKey(deploymentID string) string {
	return RedisPrefix + "lease:" + deploymentID
}
