package models

import "time"

// ResourceTypeEC2 is the resource type recorded for instances created by the
// create flow.
const ResourceTypeEC2 = "EC2"

// ResourceRecord is an externally created resource attached to a
// RequestRecord. Rows are written once, on a successful create, and removed
// only when the parent record is purged.
type ResourceRecord struct {
	ResourceID      int64     `db:"resource_id"       json:"resource_id"`
	LogID           int64     `db:"log_id"            json:"log_id"`
	ResourceType    string    `db:"resource_type"     json:"resource_type"`
	ResourceName    string    `db:"resource_name"     json:"resource_name"`
	ResourceIDValue string    `db:"resource_id_value" json:"resource_id_value"`
	CreatedAt       time.Time `db:"created_at"        json:"created_at"`
}
