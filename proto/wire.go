package proto

// Wire types of the feature serving API. Requests carry entity rows as plain
// JSON maps; responses are columnar, one ordered column per entity join key
// and requested feature, row order matching the request.

type GetOnlineFeaturesRequest struct {
	// Features are "featureview:feature" references, order preserved in the
	// response columns.
	Features   []string                 `json:"features"`
	EntityRows []map[string]interface{} `json:"entity_rows"`
}

type GetOnlineFeaturesResponse struct {
	Results map[string][]interface{} `json:"results"`
}

type PushRequest struct {
	PushSource string `json:"push_source"`
	// Rows mix entity join keys, feature columns and the event_timestamp
	// column.
	Rows []map[string]interface{} `json:"rows"`
}

type RowFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type PushResponse struct {
	RowsWritten int          `json:"rows_written"`
	Failures    []RowFailure `json:"failures,omitempty"`
}
