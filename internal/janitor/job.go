package janitor

// OrphanJob is what we push to Redis Streams: the key of a derivative that
// was persisted before a later pipeline stage failed. No bytes here, the
// worker only needs the key to delete.
type OrphanJob struct {
	Key string `json:"key"`
}
