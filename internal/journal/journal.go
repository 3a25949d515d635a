package journal

import "poolEngine/internal/model"

// Writer defines a sink for committed event records.
type Writer interface {
	Append(records []model.Record) error
}
