package cache

import (
	"github.com/jmgilman/go/errors"
)

// CodeCapacityExhausted means every backend pool is held by active tiles and no
// unused tile is left to recycle. The cache never grows on its own, so the only
// remedy is a larger configured capacity.
const CodeCapacityExhausted errors.ErrorCode = "CAPACITY_EXHAUSTED"

func errDuplicateProducer(id int) error {
	return errors.WithContext(
		errors.Newf(errors.CodeAlreadyExists, "producer %d is already registered", id),
		"producer_id", id,
	)
}

func errUnknownProducer(id int) error {
	return errors.WithContext(
		errors.Newf(errors.CodeNotFound, "producer %d is not registered", id),
		"producer_id", id,
	)
}

func errBackendIndex(i, count int) error {
	return errors.WithContextMap(
		errors.Newf(errors.CodeInvalidInput, "backend index %d out of range [0, %d)", i, count),
		map[string]interface{}{"index": i, "backend_count": count},
	)
}

func errCapacityExhausted(key TileKey, capacity int) error {
	return errors.WithContextMap(
		errors.Newf(CodeCapacityExhausted, "no free or recyclable slot for tile %s (capacity %d)", key, capacity),
		map[string]interface{}{"tile": key.String(), "capacity": capacity},
	)
}

func errInvariant(key TileKey, format string, args ...interface{}) error {
	return errors.WithContext(errors.Newf(errors.CodeInternal, format, args...), "tile", key.String())
}

// IsCapacityExhausted reports whether err signals an exhausted cache.
func IsCapacityExhausted(err error) bool {
	return errors.GetCode(err) == CodeCapacityExhausted
}

// IsConfigurationError reports whether err is caller misuse: a duplicate or
// unknown producer, a bad backend index or invalid construction arguments.
func IsConfigurationError(err error) bool {
	switch errors.GetCode(err) {
	case errors.CodeAlreadyExists, errors.CodeNotFound, errors.CodeInvalidInput, errors.CodeInvalidConfig:
		return true
	}
	return false
}
