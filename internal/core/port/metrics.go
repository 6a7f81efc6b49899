package port

// RevocationMetrics captures telemetry hooks for the revocation store and validator.
type RevocationMetrics interface {
	ObserveCacheOperation(op, outcome string)
	IncFallback(op string)
	SetCacheAvailable(available bool)
	IncValidation(outcome string)
	IncAuditFailure()
}
