package httpapi

var BuildIdempotencyRequestHash = buildIdempotencyRequestHash
