package redis

// Redis key naming conventions for provisioning data.
// All keys are prefixed with "provision:" to avoid collisions.

const keyPrefix = "provision:"

// jobKey returns the key for a job record: provision:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobsByCreatedKey is the Sorted Set indexing job IDs by creation time,
// used for newest-first listing.
const jobsByCreatedKey = keyPrefix + "jobs_by_created"
