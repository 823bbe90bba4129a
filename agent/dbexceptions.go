package agent

// reportSpanError forwards a traced database failure into the
// interception controller so a DB error observed through one of the
// gorm/redis/database adapters produces a capture the same way a panic
// would, per SPEC_FULL.md's "adapted, not copied verbatim" note on the
// carried-over DB instrumentation.
func (a *Agent) reportSpanError(operation string, err error) {
	if err == nil {
		return
	}
	desc := methodDescriptor{DeclaringType: operation, MethodName: "query"}
	a.OnException(err, nil, desc, nil)
}
