package redis

// Redis key naming conventions for coordinator data.
// All keys are prefixed with "farmcode:" to avoid collisions.

const keyPrefix = "farmcode:"

// pointerKey returns the key for a pointer entity: farmcode:pointer:{id}
func pointerKey(id string) string { return keyPrefix + "pointer:" + id }

// pointerIDsKey is the Set tracking all workflow IDs for enumeration.
const pointerIDsKey = keyPrefix + "pointer_ids"
