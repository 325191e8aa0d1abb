package redis

import "strconv"

// keyspace namespaces every failed-record key.
type keyspace string

const defaultKeyspace keyspace = "attempts:"

// recordKey returns the hash key of a record: attempts:failed:{id}
func (k keyspace) recordKey(id int64) string {
	return string(k) + "failed:" + strconv.FormatInt(id, 10)
}

// indexKey is the sorted set of record IDs, scored by ID.
func (k keyspace) indexKey() string { return string(k) + "failed_ids" }

// uuidKey is the hash mapping UUID to record ID.
func (k keyspace) uuidKey() string { return string(k) + "failed_uuids" }

// seqKey is the counter that hands out record IDs.
func (k keyspace) seqKey() string { return string(k) + "failed_seq" }
